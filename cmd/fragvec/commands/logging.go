package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lorawan-fota/fragvec/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
	"hermannm.dev/devlog"
)

// setupLogging installs the default slog handler described by cfg. When a
// log file is configured, records go to both w and the rotating file, and
// the returned closer releases the file.
func setupLogging(cfg *config.Config, w io.Writer) (io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log-level %q", cfg.LogLevel)
	}

	var closer io.Closer
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxAge:     cfg.LogMaxAgeDays,
			MaxBackups: cfg.LogMaxBackups,
			Compress:   cfg.LogCompress,
		}
		w = io.MultiWriter(w, rotator)
		closer = rotator
	}

	handler, err := newHandler(cfg.LogFormat, w, level)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(handler))
	return closer, nil
}

func newHandler(format string, w io.Writer, level slog.Level) (slog.Handler, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}), nil
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), nil
	case "dev":
		return devlog.NewHandler(w, &devlog.Options{Level: level}), nil
	}
	return nil, fmt.Errorf("unknown log-format %q", format)
}
