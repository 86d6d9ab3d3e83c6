// Package commands implements the indexengine CLI subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Sumatoshi-tech/codefang-index/internal/config"
	"github.com/Sumatoshi-tech/codefang-index/internal/engine"
	"github.com/Sumatoshi-tech/codefang-index/pkg/observability"
	"github.com/Sumatoshi-tech/codefang-index/pkg/version"
)

// buildEngine loads configuration and assembles the engine shared by every
// subcommand.
func buildEngine(configPath string) (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	eng := engine.New(cfg, engine.Options{Logger: logger})

	return eng, cfg, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if cfg.Format == "text" {
		inner = slog.NewTextHandler(os.Stderr, opts)
	} else {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(observability.NewTracingHandler(inner, "indexengine", version.Version, observability.ModeCLI))
}
