package main

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitebundle/cmd/sitebundle/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag

		Build  commands.BuildCmd  `cmd:"" help:"Build the site"`
		Serve  commands.ServeCmd  `cmd:"" help:"Build, watch and serve the site for development"`
		Expand commands.ExpandCmd `cmd:"" help:"Expand include directives in one HTML file"`
	}
)

func main() {
	// env vars must be set before kong reads its env tags
	envFile := os.Getenv("SITEBUNDLE_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal().Err(err).Str("file", envFile).Msg("Failed to load env file")
	}

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
