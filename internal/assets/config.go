package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"

	InjectBody = "body"
	InjectHead = "head"
)

type Config struct {
	// Directory relative paths are resolved against, the working directory when empty
	BaseDir string `yaml:"baseDir"`
	// Build mode, development or production
	Mode string `yaml:"mode"`
	// Entry point glob patterns (e.g., "src/index.js")
	EntryPoints []string `yaml:"entryPoints"`
	// Source directory, root-relative includes resolve against it
	SourceDir string `yaml:"sourceDir"`
	// Output directory for built files
	OutputDir string `yaml:"outputDir"`
	// Path to metafile
	MetafilePath string `yaml:"metafilePath"`
	// URL prefix for emitted files in rendered pages
	PublicPath string `yaml:"publicPath"`
	// Remove the output directory before building
	Clean bool `yaml:"clean"`
	// Whether to minify output
	Minify bool `yaml:"minify"`
	// Whether to enable source maps
	SourceMap bool `yaml:"sourceMap"`
	// esbuild target, e.g. "es2020" or "esnext"
	Target string `yaml:"target"`
	// Reject includes that resolve outside SourceDir
	RestrictIncludes bool `yaml:"restrictIncludes"`
	// HTML pages rendered from layout templates
	Pages []Page `yaml:"pages"`
}

// Page is an HTML document rendered from a layout template with the built scripts injected.
type Page struct {
	// Layout template path
	Template string `yaml:"template"`
	// Output file name relative to OutputDir
	Filename string `yaml:"filename"`
	// Where script tags go, body or head
	Inject string `yaml:"inject"`
	// Optional icon copied to OutputDir and linked from the page
	Favicon string `yaml:"favicon"`
	// Entry points whose scripts are injected, all entry points when empty
	Chunks []string `yaml:"chunks"`
}

// DefaultConfig returns the configuration for the given mode
func DefaultConfig(mode string) Config {
	dev := mode != ModeProduction
	if dev {
		mode = ModeDevelopment
	}

	return Config{
		Mode:         mode,
		EntryPoints:  []string{"src/index.js"},
		SourceDir:    "src",
		OutputDir:    "dist",
		MetafilePath: "dist/meta.json",
		PublicPath:   "/",
		Clean:        true,
		Minify:       !dev,
		SourceMap:    dev,
		Target:       cond(dev, "esnext", "es2020"),
		Pages: []Page{
			{
				Template: "src/layouts/default.html",
				Filename: "index.html",
				Inject:   InjectBody,
			},
		},
	}
}

// LoadConfig reads a YAML config file over the defaults for its mode. A non-empty mode
// overrides the mode set in the file. Fields missing from the file keep their defaults.
func LoadConfig(path, mode string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var peek struct {
		Mode string `yaml:"mode"`
	}
	if err := yaml.Unmarshal(data, &peek); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if mode == "" {
		mode = peek.Mode
	}

	cfg := DefaultConfig(mode)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if mode != "" {
		cfg.Mode = mode
	}

	return cfg, cfg.Validate()
}

// Dev reports whether the config builds for development
func (c Config) Dev() bool {
	return c.Mode != ModeProduction
}

func (c Config) Validate() error {
	if c.Mode != ModeDevelopment && c.Mode != ModeProduction {
		return fmt.Errorf("invalid mode %q, must be %s or %s", c.Mode, ModeDevelopment, ModeProduction)
	}
	if len(c.EntryPoints) == 0 {
		return errors.New("at least one entry point is required")
	}
	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if err := c.validateOutputDir(); err != nil {
		return err
	}
	for i, page := range c.Pages {
		if page.Template == "" {
			return fmt.Errorf("page %d: template is required", i)
		}
		if page.Inject != "" && page.Inject != InjectBody && page.Inject != InjectHead {
			return fmt.Errorf("page %d: inject must be %s or %s", i, InjectBody, InjectHead)
		}
	}
	return nil
}

// validateOutputDir rejects an output directory that holds the base directory or any
// source the build reads, those would be wiped by a clean build.
func (c Config) validateOutputDir() error {
	baseDir, err := filepath.Abs(c.BaseDir)
	if err != nil {
		return err
	}

	resolve := func(path string) string {
		if filepath.IsAbs(path) {
			return filepath.Clean(path)
		}
		return filepath.Join(baseDir, path)
	}

	outDir := resolve(c.OutputDir)
	if contains(outDir, baseDir) {
		return fmt.Errorf("%w: %s contains the base directory %s", ErrUnsafeOutputDir, c.OutputDir, baseDir)
	}

	sources := append([]string{c.SourceDir}, c.EntryPoints...)
	for _, page := range c.Pages {
		sources = append(sources, page.Template, page.Favicon)
	}
	for _, source := range sources {
		if source == "" {
			continue
		}
		if contains(outDir, resolve(source)) {
			return fmt.Errorf("%w: %s contains %s", ErrUnsafeOutputDir, c.OutputDir, source)
		}
	}
	return nil
}

// contains reports whether path is dir or lies below it
func contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
