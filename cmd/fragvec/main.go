package main

import (
	"log/slog"
	"os"

	"github.com/lorawan-fota/fragvec/cmd/fragvec/commands"
)

func main() {
	// Text logger until the configured handler is installed
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
