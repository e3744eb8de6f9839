package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	dev := DefaultConfig("")
	require.Equal(t, ModeDevelopment, dev.Mode)
	require.True(t, dev.SourceMap)
	require.False(t, dev.Minify)
	require.Equal(t, "esnext", dev.Target)

	prod := DefaultConfig(ModeProduction)
	require.False(t, prod.SourceMap)
	require.True(t, prod.Minify)
	require.Equal(t, "es2020", prod.Target)
	require.NoError(t, prod.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{
			name:    "invalid mode",
			modify:  func(c *Config) { c.Mode = "staging" },
			wantErr: "invalid mode",
		},
		{
			name:    "no entry points",
			modify:  func(c *Config) { c.EntryPoints = nil },
			wantErr: "entry point",
		},
		{
			name:    "no output dir",
			modify:  func(c *Config) { c.OutputDir = "" },
			wantErr: "output directory",
		},
		{
			name:    "page without template",
			modify:  func(c *Config) { c.Pages = []Page{{Filename: "x.html"}} },
			wantErr: "template is required",
		},
		{
			name:    "bad inject",
			modify:  func(c *Config) { c.Pages[0].Inject = "footer" },
			wantErr: "inject must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(ModeDevelopment)
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateOutputDir(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{
			name:   "base directory",
			modify: func(c *Config) { c.OutputDir = "." },
		},
		{
			name:   "parent of base directory",
			modify: func(c *Config) { c.OutputDir = ".." },
		},
		{
			name:   "absolute base directory",
			modify: func(c *Config) { c.OutputDir = base },
		},
		{
			name:   "source directory",
			modify: func(c *Config) { c.OutputDir = "src" },
		},
		{
			name:   "parent of source directory",
			modify: func(c *Config) { c.SourceDir = "web/src"; c.OutputDir = "web" },
		},
		{
			name: "entry point",
			modify: func(c *Config) {
				c.SourceDir = "src"
				c.EntryPoints = []string{"public/app.js"}
				c.OutputDir = "public"
			},
		},
		{
			name:   "page template",
			modify: func(c *Config) { c.Pages[0].Template = "dist/layout.html" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(ModeDevelopment)
			cfg.BaseDir = base
			tt.modify(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrUnsafeOutputDir)

			_, err := New(cfg)
			require.ErrorIs(t, err, ErrUnsafeOutputDir)
		})
	}

	t.Run("sibling directories", func(t *testing.T) {
		cfg := DefaultConfig(ModeDevelopment)
		cfg.BaseDir = base
		cfg.OutputDir = "srcdist"
		require.NoError(t, cfg.Validate())
	})
}

func TestPipeline_BuildRejectsBaseOutputDir(t *testing.T) {
	dir := writeProject(t, siteFiles())
	cfg := testConfig(dir, ModeDevelopment)
	cfg.OutputDir = "."

	_, err := New(cfg)
	require.ErrorIs(t, err, ErrUnsafeOutputDir)
	require.FileExists(t, filepath.Join(dir, "src", "layouts", "default.html"))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sitebundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: production
entryPoints:
  - src/pages/*.js
outputDir: build
pages:
  - template: src/layouts/default.html
    filename: index.html
    favicon: src/assets/img/icon/webpack.svg
`), 0o600))

	cfg, err := LoadConfig(path, "")
	require.NoError(t, err)
	require.Equal(t, ModeProduction, cfg.Mode)
	require.True(t, cfg.Minify)
	require.Equal(t, []string{"src/pages/*.js"}, cfg.EntryPoints)
	require.Equal(t, "build", cfg.OutputDir)
	require.Equal(t, "src", cfg.SourceDir)
	require.Len(t, cfg.Pages, 1)
	require.Equal(t, "src/assets/img/icon/webpack.svg", cfg.Pages[0].Favicon)

	cfg, err = LoadConfig(path, ModeDevelopment)
	require.NoError(t, err)
	require.Equal(t, ModeDevelopment, cfg.Mode)
	require.False(t, cfg.Minify)
}

func TestLoadConfig_errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: [oops"), 0o600))
	_, err = LoadConfig(path, "")
	require.Error(t, err)
}

func TestNew_invalidTarget(t *testing.T) {
	cfg := DefaultConfig(ModeDevelopment)
	cfg.Target = "es3"

	_, err := New(cfg)
	require.ErrorIs(t, err, ErrInvalidTarget)
}
