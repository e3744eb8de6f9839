package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/wolfeidau/sitebundle/internal/include"
	"github.com/wolfeidau/sitebundle/internal/logger"
)

type ExpandCmd struct {
	File     string `arg:"" help:"HTML file to expand" type:"existingfile"`
	Root     string `help:"directory ./ includes resolve against, defaults to the file's directory" type:"path"`
	Output   string `help:"write the result to this file instead of stdout" short:"o" type:"path"`
	MaxDepth int    `help:"maximum include nesting" default:"64"`
	Restrict bool   `help:"reject includes outside the root directory"`
	ListDeps bool   `help:"print the included files instead of the expanded document" name:"deps"`
}

func (c *ExpandCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	file, err := filepath.Abs(c.File)
	if err != nil {
		return err
	}

	resolver := include.NewResolver(include.WithMaxDepth(c.MaxDepth), include.WithRestrictToRoot(c.Restrict))
	content, deps, err := include.ExpandPath(resolver, afero.NewOsFs(), file, c.Root)
	if err != nil {
		return fmt.Errorf("failed to expand %s: %w", c.File, err)
	}

	log.Debug().Str("file", file).Int("dependencies", len(deps)).Msg("Expanded file")

	if c.Output == "" {
		return c.write(os.Stdout, content, deps)
	}

	f, err := os.Create(c.Output)
	if err != nil {
		return err
	}
	if err := c.write(f, content, deps); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (c *ExpandCmd) write(out io.Writer, content string, deps []string) error {
	if c.ListDeps {
		for _, dep := range deps {
			if _, err := fmt.Fprintln(out, dep); err != nil {
				return err
			}
		}
		return nil
	}

	_, err := io.WriteString(out, content)
	return err
}
