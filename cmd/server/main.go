package main

import (
	"log/slog"
	"os"

	"github.com/reshetovitsme/voice-of-light/internal/cli"
	slogmulti "github.com/samber/slog-multi"
)

func main() {
	// Setup structured logging with multiple handlers using slog-multi
	cli.LogLevel.Set(slog.LevelInfo)
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cli.LogLevel,
	})
	jsonHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})

	// Use Fanout to send logs to both handlers
	multiHandler := slogmulti.Fanout(textHandler, jsonHandler)
	logger := slog.New(multiHandler)
	slog.SetDefault(logger)

	if err := cli.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
