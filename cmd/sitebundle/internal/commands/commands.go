package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/sitebundle/internal/assets"
	"github.com/wolfeidau/sitebundle/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Version string
}

// BuildFlags are shared by every command that runs the asset pipeline
type BuildFlags struct {
	Config      string   `help:"path to YAML config file" type:"path" env:"SITEBUNDLE_CONFIG"`
	Mode        string   `help:"build mode, development or production (defaults to the config file, then development)" env:"NODE_ENV"`
	Entry       []string `help:"entry point globs, replaces the configured entry points" env:"SITEBUNDLE_ENTRY"`
	OutDir      string   `help:"output directory, replaces the configured output directory" env:"SITEBUNDLE_OUT_DIR"`
	SampleRatio float64  `help:"fraction of build traces exported" default:"1"`
	Telemetry   bool     `help:"export build metrics and traces over OTLP" default:"false" env:"SITEBUNDLE_TELEMETRY"`
}

// LoadConfig resolves the asset configuration from the config file and flag overrides
func (f *BuildFlags) LoadConfig() (assets.Config, error) {
	var (
		cfg assets.Config
		err error
	)

	if f.Mode != "" && f.Mode != assets.ModeDevelopment && f.Mode != assets.ModeProduction {
		return assets.Config{}, fmt.Errorf("invalid mode %q, must be %s or %s", f.Mode, assets.ModeDevelopment, assets.ModeProduction)
	}

	if f.Config != "" {
		cfg, err = assets.LoadConfig(f.Config, f.Mode)
		if err != nil {
			return assets.Config{}, err
		}
	} else {
		cfg = assets.DefaultConfig(f.Mode)
	}

	if len(f.Entry) > 0 {
		cfg.EntryPoints = f.Entry
	}
	if f.OutDir != "" {
		if filepath.Dir(cfg.MetafilePath) == filepath.Clean(cfg.OutputDir) {
			cfg.MetafilePath = filepath.Join(f.OutDir, filepath.Base(cfg.MetafilePath))
		}
		cfg.OutputDir = f.OutDir
	}

	return cfg, cfg.Validate()
}

// setupTelemetry starts OTLP export when enabled and returns a shutdown func that is
// always safe to call
func (f *BuildFlags) setupTelemetry(ctx context.Context, log zerolog.Logger, version string) func() {
	noop := func() {}
	if !f.Telemetry {
		return noop
	}

	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
		ServiceName: "sitebundle",
		Version:     version,
		SampleRatio: f.SampleRatio,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		return noop
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}
