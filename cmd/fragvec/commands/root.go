package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/lorawan-fota/fragvec/internal/config"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// logCloser releases the rotating log file, if one was opened.
var logCloser io.Closer

var rootCmd = &cobra.Command{
	Use:   "fragvec",
	Short: "LoRaWAN FOTA fragmentation test vector generator",
	Long: `Builds a firmware update bundle, fragments it with the external encoder,
corrects the fragment layout and writes a C header of test vectors.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "config load failed")
		}
		closer, err := setupLogging(cfg, os.Stderr)
		if err != nil {
			return errors.Wrap(err, "logging setup failed")
		}
		logCloser = closer
		return nil
	},
}

func Execute() {
	if err := execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// execute runs the command line and releases the log file whether or not
// the command succeeded.
func execute(args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	closeLog()
	return err
}

func closeLog() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.String("sqlite-path", ".artifacts/runs.db", "SQLite run history path")
	flags.String("fsm-db-path", ".artifacts/fsm", "FSM database directory")
	flags.String("work-dir", ".artifacts/work", "Directory for temporary bundles and downloads")

	flags.Int("fragment-size", 204, "Fragment payload size in bytes")
	flags.Int("window", 20, "Encoder redundancy window for manifest strategies")
	flags.Int("legacy-window", 50, "Encoder redundancy window for the legacy strategy")

	flags.String("encoder-command", "python encode_file.py", "Fragment encoder command")
	flags.String("signer", "ecdsa", "Signer: ecdsa or openssl")
	flags.String("signing-key", "certs/update.key", "PEM private key used to sign diffs")
	flags.String("openssl-path", "openssl", "openssl binary for the openssl signer")
	flags.String("manifest-builder", "cbor", "Manifest builder: cbor or exec")
	flags.String("manifest-command", "manifest-tool create --payload", "Manifest tool command for the exec builder")
	flags.String("checksum-command", "", "External CRC-64 utility (empty computes in process)")

	flags.String("identity-file", "", "YAML file with manufacturer and device class")
	flags.String("manufacturer-name", "arm.com", "Manufacturer name hashed into the vendor UUID")
	flags.String("device-class-name", "awesome-lora-sensor", "Device class name hashed into the class UUID")

	flags.Int64("max-image-size", 16*1024*1024, "Max image size in bytes")

	flags.String("s3-region", "us-east-1", "S3 region")
	flags.Bool("s3-anonymous", false, "Use anonymous S3 credentials")
	flags.String("publish-bucket", "", "S3 bucket the artifact is published to")
	flags.String("publish-prefix", "vectors/", "Key prefix for published artifacts")

	flags.Bool("direct", false, "Run stages in process without the FSM")

	flags.String("log-format", "text", "Log format: text, json or dev")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-file", "", "Also write logs to this rotating file")
	flags.Int("log-max-size-mb", 10, "Rotate the log file at this size")
	flags.Int("log-max-backups", 3, "Rotated log files to keep")
	flags.Int("log-max-age-days", 28, "Days to keep rotated log files")
	flags.Bool("log-compress", false, "Gzip rotated log files")

	viper.BindPFlags(flags)
}
