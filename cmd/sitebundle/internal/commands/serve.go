package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/sitebundle/internal/assets"
	"github.com/wolfeidau/sitebundle/internal/devserver"
	"github.com/wolfeidau/sitebundle/internal/logger"
)

type ServeCmd struct {
	BuildFlags `embed:""`

	Listen      string        `help:"dev server listen address" default:"localhost:3000" env:"SITEBUNDLE_LISTEN"`
	CORSOrigins []string      `help:"origins allowed to fetch assets cross origin" env:"SITEBUNDLE_CORS_ORIGINS"`
	Debounce    time.Duration `help:"quiet period before a change triggers a rebuild" default:"100ms"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	cfg, err := c.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	shutdown := c.setupTelemetry(ctx, log, globals.Version)
	defer shutdown()

	pipeline, err := assets.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to load assets pipeline: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := c.devServer(pipeline, log)

	log.Info().Str("version", globals.Version).Str("mode", cfg.Mode).Msg("Starting dev server")
	return srv.Run(ctx)
}

// devServer serves the directory the pipeline writes to, which is resolved against the
// configured base directory
func (c *ServeCmd) devServer(pipeline *assets.Pipeline, log zerolog.Logger) *devserver.Server {
	return devserver.New(devserver.Config{
		Listen:      c.Listen,
		Dir:         pipeline.OutputDir(),
		CORSOrigins: c.CORSOrigins,
		Debounce:    c.Debounce,
	}, pipeline, log)
}
