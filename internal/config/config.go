package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// Working directory for temporary bundles and downloads
	WorkDir string `mapstructure:"work-dir"`

	// Fragmentation parameters
	FragmentSize int `mapstructure:"fragment-size"`
	Window       int `mapstructure:"window"`
	LegacyWindow int `mapstructure:"legacy-window"`

	// External tools
	EncoderCommand  string `mapstructure:"encoder-command"`
	Signer          string `mapstructure:"signer"`
	SigningKey      string `mapstructure:"signing-key"`
	OpenSSLPath     string `mapstructure:"openssl-path"`
	ManifestBuilder string `mapstructure:"manifest-builder"`
	ManifestCommand string `mapstructure:"manifest-command"`
	ChecksumCommand string `mapstructure:"checksum-command"`

	// Device identity
	IdentityFile     string `mapstructure:"identity-file"`
	ManufacturerName string `mapstructure:"manufacturer-name"`
	DeviceClassName  string `mapstructure:"device-class-name"`

	// Security limits
	MaxImageSize int64 `mapstructure:"max-image-size"`

	// S3 configuration
	S3Region      string `mapstructure:"s3-region"`
	S3Anonymous   bool   `mapstructure:"s3-anonymous"`
	PublishBucket string `mapstructure:"publish-bucket"`
	PublishPrefix string `mapstructure:"publish-prefix"`

	// Run stages in process instead of through the FSM
	Direct bool `mapstructure:"direct"`

	// Logging
	LogFormat     string `mapstructure:"log-format"`
	LogLevel      string `mapstructure:"log-level"`
	LogFile       string `mapstructure:"log-file"`
	LogMaxSizeMB  int    `mapstructure:"log-max-size-mb"`
	LogMaxBackups int    `mapstructure:"log-max-backups"`
	LogMaxAgeDays int    `mapstructure:"log-max-age-days"`
	LogCompress   bool   `mapstructure:"log-compress"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("sqlite-path", ".artifacts/runs.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm")
	viper.SetDefault("work-dir", ".artifacts/work")
	viper.SetDefault("fragment-size", 204)
	viper.SetDefault("window", 20)
	viper.SetDefault("legacy-window", 50)
	viper.SetDefault("encoder-command", "python encode_file.py")
	viper.SetDefault("signer", "ecdsa")
	viper.SetDefault("signing-key", "certs/update.key")
	viper.SetDefault("openssl-path", "openssl")
	viper.SetDefault("manifest-builder", "cbor")
	viper.SetDefault("manifest-command", "manifest-tool create --payload")
	viper.SetDefault("checksum-command", "")
	viper.SetDefault("identity-file", "")
	viper.SetDefault("manufacturer-name", "arm.com")
	viper.SetDefault("device-class-name", "awesome-lora-sensor")
	viper.SetDefault("max-image-size", 16*1024*1024)
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("s3-anonymous", false)
	viper.SetDefault("publish-bucket", "")
	viper.SetDefault("publish-prefix", "vectors/")
	viper.SetDefault("direct", false)
	viper.SetDefault("log-format", "text")
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-file", "")
	viper.SetDefault("log-max-size-mb", 10)
	viper.SetDefault("log-max-backups", 3)
	viper.SetDefault("log-max-age-days", 28)
	viper.SetDefault("log-compress", false)

	// Environment variables (will be FRAGVEC_WORK_DIR, etc.)
	viper.SetEnvPrefix("FRAGVEC")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.fragvec")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" && !c.Direct {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.FragmentSize <= 0 {
		return fmt.Errorf("fragment-size must be positive")
	}
	if c.Window <= 0 || c.LegacyWindow <= 0 {
		return fmt.Errorf("window and legacy-window must be positive")
	}
	if c.EncoderCommand == "" {
		return fmt.Errorf("encoder-command cannot be empty")
	}
	switch c.Signer {
	case "ecdsa", "openssl":
	default:
		return fmt.Errorf("signer must be ecdsa or openssl, got %q", c.Signer)
	}
	switch c.ManifestBuilder {
	case "cbor":
	case "exec":
		if c.ManifestCommand == "" {
			return fmt.Errorf("manifest-command cannot be empty with the exec manifest builder")
		}
	default:
		return fmt.Errorf("manifest-builder must be cbor or exec, got %q", c.ManifestBuilder)
	}
	if c.IdentityFile == "" && (c.ManufacturerName == "" || c.DeviceClassName == "") {
		return fmt.Errorf("manufacturer-name and device-class-name are required without identity-file")
	}
	if c.MaxImageSize <= 0 {
		return fmt.Errorf("max-image-size must be positive")
	}
	switch c.LogFormat {
	case "text", "json", "dev":
	default:
		return fmt.Errorf("log-format must be text, json or dev, got %q", c.LogFormat)
	}
	if c.LogFile != "" && c.LogMaxSizeMB <= 0 {
		return fmt.Errorf("log-max-size-mb must be positive")
	}
	return nil
}
