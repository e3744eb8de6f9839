package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/sitebundle/internal/assets"
	"github.com/wolfeidau/sitebundle/internal/logger"
)

type BuildCmd struct {
	BuildFlags `embed:""`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	cfg, err := c.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	shutdown := c.setupTelemetry(ctx, log, globals.Version)
	defer shutdown()

	log.Info().Str("version", globals.Version).Str("mode", cfg.Mode).Msg("Starting build")

	pipeline, err := assets.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to load assets pipeline: %w", err)
	}

	result, err := pipeline.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build assets: %w", err)
	}

	for _, page := range result.Pages {
		log.Info().Str("file", page).Msg("Wrote page")
	}
	return nil
}
