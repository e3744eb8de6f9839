package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitebundle/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var targets = map[string]api.Target{
	"esnext": api.ESNext,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
}

// fileLoaders emit fonts and images as separate files
var fileLoaders = map[string]api.Loader{
	".woff":  api.LoaderFile,
	".woff2": api.LoaderFile,
	".gif":   api.LoaderFile,
	".png":   api.LoaderFile,
	".jpg":   api.LoaderFile,
	".jpeg":  api.LoaderFile,
	".svg":   api.LoaderFile,
}

// Build runs esbuild with the configured settings, loads metadata and renders pages
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	started := time.Now()
	logger := log.With().Str("build_id", id.String()).Str("mode", p.config.Mode).Logger()

	ctx, span := telemetry.Tracer().Start(ctx, "assets.Build", trace.WithAttributes(
		attribute.String("build.id", id.String()),
		attribute.String("build.mode", p.config.Mode),
	))
	defer span.End()

	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("mode", p.config.Mode))
	metrics.BuildsTotal.Add(ctx, 1, attrs)

	result, err := p.build(ctx, id.String())
	duration := time.Since(started)
	metrics.BuildDuration.Record(ctx, float64(duration.Milliseconds()), attrs)

	if err != nil {
		metrics.BuildErrorsTotal.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Dur("duration", duration).Msg("Build failed")
		return nil, err
	}

	result.Duration = duration
	logger.Info().
		Int("outputs", len(result.Outputs)).
		Int("pages", len(result.Pages)).
		Int("dependencies", len(result.Dependencies)).
		Dur("duration", duration).
		Msg("Build finished")

	return result, nil
}

func (p *Pipeline) build(ctx context.Context, id string) (*Result, error) {
	entryPoints, err := p.entryPoints()
	if err != nil {
		return nil, err
	}

	log.Info().Strs("entrypoints", entryPoints).Msg("Building assets")

	outDir := p.OutputDir()
	deps := newDependencySet()
	target, _ := parseTarget(p.config.Target)
	dev := p.config.Dev()

	// nothing is written until esbuild succeeds, so a failed build leaves the previous output
	result := api.Build(api.BuildOptions{
		AbsWorkingDir:     p.baseDir,
		EntryPoints:       entryPoints,
		Bundle:            true,
		Splitting:         true,
		Write:             false,
		Outdir:            outDir,
		Format:            api.FormatESModule,
		Platform:          api.PlatformBrowser,
		Target:            target,
		MinifyWhitespace:  p.config.Minify,
		MinifyIdentifiers: p.config.Minify,
		MinifySyntax:      p.config.Minify,
		TreeShaking:       api.TreeShakingTrue,
		Sourcemap:         cond(p.config.SourceMap, api.SourceMapLinked, api.SourceMapNone),
		Metafile:          true,
		EntryNames:        cond(dev, "[name]", "[name].[hash]"),
		ChunkNames:        cond(dev, "chunks/[name]", "chunks/[name].[hash]"),
		AssetNames:        cond(dev, "assets/[ext]/[name]", "assets/[ext]/[name]-[hash]"),
		Loader:            fileLoaders,
		Define: map[string]string{
			"process.env.NODE_ENV": strconv.Quote(p.config.Mode),
		},
		Plugins: []api.Plugin{
			IncludePlugin(p.fs, p.abs(p.config.SourceDir), p.resolver, deps.add),
		},
		LogLevel: api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		texts := make([]string, 0, len(result.Errors))
		for _, msg := range result.Errors {
			log.Error().Str("error", msg.Text).Str("file", location(msg)).Msg("Build error")
			texts = append(texts, msg.Text)
		}
		// keep watching whatever was read, a fix to any of it should trigger a rebuild
		deps.add(p.deps...)
		deps.add(entryPoints...)
		p.deps = deps.list()
		return nil, fmt.Errorf("%w: %s", ErrBuildFailed, strings.Join(texts, "; "))
	}

	for _, msg := range result.Warnings {
		log.Warn().Str("warning", msg.Text).Str("file", location(msg)).Msg("Build warning")
	}

	// Parse metadata
	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(result.Metafile), &metadata); err != nil {
		return nil, err
	}

	for input := range metadata.Inputs {
		if strings.Contains(input, ":") {
			// namespaced virtual modules have no file behind them
			continue
		}
		deps.add(p.abs(filepath.FromSlash(input)))
	}

	// a clean build is staged next to the output directory and swapped in once complete
	stageDir := outDir
	if p.config.Clean {
		stageDir = filepath.Join(filepath.Dir(outDir), "."+filepath.Base(outDir)+"-"+id)
		defer func() {
			if err := os.RemoveAll(stageDir); err != nil {
				log.Warn().Err(err).Str("dir", stageDir).Msg("Failed to remove staging directory")
			}
		}()
	}

	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, err
	}

	outputs := make([]string, 0, len(result.OutputFiles))
	for _, file := range result.OutputFiles {
		if err := writeOutput(outDir, stageDir, file); err != nil {
			return nil, err
		}
		log.Debug().Str("file", file.Path).Msg("Built file")
		outputs = append(outputs, file.Path)
	}

	previous := p.metadata
	p.metadata = &metadata

	pages := make([]string, 0, len(p.config.Pages))
	for _, page := range p.config.Pages {
		out, pageDeps, err := p.renderPage(ctx, page, entryPoints, stageDir)
		deps.add(pageDeps...)
		if err != nil {
			p.metadata = previous
			deps.add(p.deps...)
			p.deps = deps.list()
			return nil, err
		}
		rel, _ := filepath.Rel(stageDir, out)
		pages = append(pages, filepath.Join(outDir, rel))
	}

	if p.config.Clean {
		if err := replaceDir(stageDir, outDir); err != nil {
			p.metadata = previous
			return nil, fmt.Errorf("failed to replace output directory: %w", err)
		}
	}

	// Write metafile
	if p.config.MetafilePath != "" {
		metafilePath := p.abs(p.config.MetafilePath)
		if err := os.MkdirAll(filepath.Dir(metafilePath), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(metafilePath, []byte(result.Metafile), 0600); err != nil {
			return nil, err
		}
	}

	p.deps = deps.list()

	return &Result{
		ID:           id,
		EntryPoints:  entryPoints,
		Outputs:      outputs,
		Pages:        pages,
		Dependencies: slices.Clone(p.deps),
	}, nil
}

// writeOutput writes an esbuild output file under stageDir, keeping its path relative to outDir
func writeOutput(outDir, stageDir string, file api.OutputFile) error {
	rel, err := filepath.Rel(outDir, file.Path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output %s is outside %s", file.Path, outDir)
	}

	path := filepath.Join(stageDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, file.Contents, 0o600)
}

// replaceDir moves staged into place at dir, removing whatever dir held before
func replaceDir(staged, dir string) error {
	backup := staged + ".old"
	if err := os.Rename(dir, backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(staged, dir); err != nil {
		if restoreErr := os.Rename(backup, dir); restoreErr != nil && !errors.Is(restoreErr, fs.ErrNotExist) {
			return errors.Join(err, restoreErr)
		}
		return err
	}
	return os.RemoveAll(backup)
}

// entryPoints expands the configured patterns into absolute, de-duplicated paths
func (p *Pipeline) entryPoints() ([]string, error) {
	var entryPoints []string
	for _, pattern := range p.config.EntryPoints {
		matches, err := filepath.Glob(p.abs(pattern))
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if !slices.Contains(entryPoints, match) {
				entryPoints = append(entryPoints, match)
			}
		}
	}

	if len(entryPoints) == 0 {
		return nil, ErrNoEntryPoints
	}
	return entryPoints, nil
}

// LoadScripts returns the ordered list of script URLs needed for the given entrypoint
// and the main entrypoint URL
func (p *Pipeline) LoadScripts(entryPointPath string) ([]string, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.loadScripts(entryPointPath)
}

// LoadStyles returns the URL of the stylesheet esbuild extracted for the entrypoint, or
// an empty string when the entrypoint imports no CSS
func (p *Pipeline) LoadStyles(entryPointPath string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	info, _, err := p.findOutput(entryPointPath)
	if err != nil {
		return "", err
	}
	if info.CSSBundle == "" {
		return "", nil
	}
	return p.publicURL(info.CSSBundle), nil
}

func (p *Pipeline) loadScripts(entryPointPath string) ([]string, string, error) {
	info, outputPath, err := p.findOutput(entryPointPath)
	if err != nil {
		return nil, "", err
	}

	entrypoint := p.publicURL(outputPath)
	scripts := []string{entrypoint}
	visited := map[string]bool{outputPath: true}
	p.addDependencies(info, &scripts, visited)

	return scripts, entrypoint, nil
}

func (p *Pipeline) findOutput(entryPointPath string) (OutputInfo, string, error) {
	if p.metadata == nil {
		return OutputInfo{}, "", ErrNotBuilt
	}

	entryPointPath = p.metaPath(entryPointPath)

	// Find the output file for this entrypoint, skipping its source map
	for outputPath, info := range p.metadata.Outputs {
		if info.EntryPoint == entryPointPath && filepath.Ext(outputPath) == ".js" {
			return info, outputPath, nil
		}
	}

	return OutputInfo{}, "", fmt.Errorf("%w: %s", ErrEntryPointNotFound, entryPointPath)
}

func (p *Pipeline) addDependencies(output OutputInfo, scripts *[]string, visited map[string]bool) {
	for _, imp := range output.Imports {
		if imp.Kind == "dynamic-import" || filepath.Ext(imp.Path) != ".js" {
			continue
		}
		if !visited[imp.Path] {
			visited[imp.Path] = true
			*scripts = append(*scripts, p.publicURL(imp.Path))

			if chunkInfo, exists := p.metadata.Outputs[imp.Path]; exists {
				p.addDependencies(chunkInfo, scripts, visited)
			}
		}
	}
}

// metaPath converts a path to the form esbuild uses in the metafile, relative to the
// working directory with forward slashes
func (p *Pipeline) metaPath(path string) string {
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(p.baseDir, path); err == nil {
			path = rel
		}
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// publicURL maps a metafile output path to the URL it is served from
func (p *Pipeline) publicURL(outputPath string) string {
	rel, err := filepath.Rel(p.OutputDir(), p.abs(filepath.FromSlash(outputPath)))
	if err != nil {
		rel = outputPath
	}
	return publicPrefix(p.config.PublicPath) + filepath.ToSlash(rel)
}

func publicPrefix(publicPath string) string {
	if publicPath == "" {
		return "/"
	}
	if !strings.HasSuffix(publicPath, "/") {
		return publicPath + "/"
	}
	return publicPath
}

func parseTarget(target string) (api.Target, error) {
	if target == "" {
		return api.ESNext, nil
	}
	t, ok := targets[strings.ToLower(target)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTarget, target)
	}
	return t, nil
}

func location(msg api.Message) string {
	if msg.Location == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", msg.Location.File, msg.Location.Line, msg.Location.Column)
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
