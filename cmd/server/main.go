package main

import (
	"log/slog"
	"os"

	"github.com/Anvoria/alumnet/internal/config"
	"github.com/Anvoria/alumnet/internal/server"
)

func main() {
	envConfig := config.LoadEnv()

	cfg, err := config.Load(envConfig.ConfigPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err, "path", envConfig.ConfigPath)
		os.Exit(1)
	}

	initLogger(cfg.Logging.Level)

	if err := server.Start(cfg, envConfig); err != nil {
		os.Exit(1)
	}
}

func initLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	slog.SetDefault(slog.New(handler))
}
