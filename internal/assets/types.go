package assets

import (
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/wolfeidau/sitebundle/internal/include"
)

type BuildMetadata struct {
	Inputs  map[string]InputInfo  `json:"inputs"`
	Outputs map[string]OutputInfo `json:"outputs"`
}

type InputInfo struct {
	Bytes int `json:"bytes"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	CSSBundle  string       `json:"cssBundle"`
	Imports    []ImportInfo `json:"imports"`
}

type ImportInfo struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// Result describes a completed build
type Result struct {
	ID           string
	EntryPoints  []string
	Outputs      []string
	Pages        []string
	Dependencies []string
	Duration     time.Duration
}

// Pipeline manages the asset build process and script loading
type Pipeline struct {
	config   Config
	baseDir  string
	fs       afero.Fs
	resolver *include.Resolver
	metadata *BuildMetadata
	deps     []string
	mu       sync.RWMutex
}

// New creates a new asset pipeline with the given configuration
func New(config Config) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, err
	}

	if _, err := parseTarget(config.Target); err != nil {
		return nil, err
	}

	return &Pipeline{
		config:   config,
		baseDir:  baseDir,
		fs:       afero.NewOsFs(),
		resolver: include.NewResolver(include.WithRestrictToRoot(config.RestrictIncludes)),
	}, nil
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() Config {
	return p.config
}

// OutputDir returns the absolute directory builds are written to
func (p *Pipeline) OutputDir() string {
	return p.abs(p.config.OutputDir)
}

// Dependencies returns every file the last build read, including files that were
// referenced but missing
func (p *Pipeline) Dependencies() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return slices.Clone(p.deps)
}

func (p *Pipeline) abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.baseDir, path)
}

// dependencySet collects paths from esbuild callbacks, which may run concurrently
type dependencySet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func newDependencySet() *dependencySet {
	return &dependencySet{paths: make(map[string]struct{})}
}

func (d *dependencySet) add(paths ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, path := range paths {
		d.paths[path] = struct{}{}
	}
}

func (d *dependencySet) list() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	paths := make([]string, 0, len(d.paths))
	for path := range d.paths {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}
