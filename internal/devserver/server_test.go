package devserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/sitebundle/internal/assets"
)

type fakeBuilder struct {
	builds    atomic.Int32
	deps      []string
	failFirst bool
}

func (f *fakeBuilder) Build(ctx context.Context) (*assets.Result, error) {
	if f.builds.Add(1) == 1 && f.failFirst {
		return nil, errors.New("syntax error")
	}
	return &assets.Result{Dependencies: f.deps}, nil
}

// countingBuilder records the outcome of every build of a real pipeline
type countingBuilder struct {
	*assets.Pipeline
	builds   atomic.Int32
	failures atomic.Int32
}

func (c *countingBuilder) Build(ctx context.Context) (*assets.Result, error) {
	result, err := c.Pipeline.Build(ctx)
	if err != nil {
		c.failures.Add(1)
	}
	c.builds.Add(1)
	return result, err
}

func startServer(t *testing.T, srv *Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (f *fakeBuilder) Dependencies() []string {
	return f.deps
}

func TestServer_Handler(t *testing.T) {
	dir := t.TempDir()
	page := "<html><body>" + strings.Repeat("<p>hello</p>", 200) + "</body></html>"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte(page), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte(`console.log("hello")`), 0o600))

	srv := New(Config{Dir: dir, CORSOrigins: []string{"http://localhost:8080"}}, &fakeBuilder{}, zerolog.Nop())

	t.Run("serves index with gzip", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()

		srv.Handler().ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
		require.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))
	})

	t.Run("allows configured origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/app.js", nil)
		r.Header.Set("Origin", "http://localhost:8080")
		w := httptest.NewRecorder()

		srv.Handler().ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "http://localhost:8080", w.Header().Get("Access-Control-Allow-Origin"))
		require.Contains(t, w.Body.String(), "console.log")
	})

	t.Run("missing file", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing.js", nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestServer_RunRebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	partial := filepath.Join(dir, "header.html")
	require.NoError(t, os.WriteFile(partial, []byte("<h1>v1</h1>"), 0o600))

	builder := &fakeBuilder{deps: []string{partial}}
	srv := New(Config{
		Listen:   "127.0.0.1:0",
		Dir:      dir,
		Debounce: 10 * time.Millisecond,
	}, builder, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return builder.builds.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// give the watcher time to register before touching the file
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(partial, []byte("<h1>v2</h1>"), 0o600))

	require.Eventually(t, func() bool {
		return builder.builds.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestServer_RunInitialBuildFails(t *testing.T) {
	dir := t.TempDir()
	partial := filepath.Join(dir, "header.html")
	require.NoError(t, os.WriteFile(partial, []byte("<h1>v1</h1>"), 0o600))

	builder := &fakeBuilder{deps: []string{partial}, failFirst: true}
	srv := New(Config{
		Listen:   "127.0.0.1:0",
		Dir:      dir,
		Debounce: 10 * time.Millisecond,
	}, builder, zerolog.Nop())
	startServer(t, srv)

	require.Eventually(t, func() bool {
		return builder.builds.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(partial, []byte("<h1>v2</h1>"), 0o600))

	require.Eventually(t, func() bool {
		return builder.builds.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_RunKeepsOutputWhenRebuildFails(t *testing.T) {
	base := t.TempDir()
	files := map[string]string{
		"src/index.js":             "import banner from \"./partials/banner.html\";\nconsole.log(banner);\n",
		"src/partials/banner.html": `<div><include src="nav.html"/></div>`,
		"src/partials/nav.html":    `<nav>home</nav>`,
		"src/layouts/default.html": `<html><head></head><body></body></html>`,
	}
	for name, content := range files {
		path := filepath.Join(base, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	cfg := assets.DefaultConfig(assets.ModeDevelopment)
	cfg.BaseDir = base
	pipeline, err := assets.New(cfg)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "dist"), pipeline.OutputDir())

	builder := &countingBuilder{Pipeline: pipeline}
	srv := New(Config{
		Listen:   "127.0.0.1:0",
		Dir:      pipeline.OutputDir(),
		Debounce: 10 * time.Millisecond,
	}, builder, zerolog.Nop())
	startServer(t, srv)

	require.Eventually(t, func() bool {
		return builder.builds.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Zero(t, builder.failures.Load())

	w := get(srv, "/index.js")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "<nav>home</nav>")

	time.Sleep(50 * time.Millisecond)
	banner := filepath.Join(base, "src", "partials", "banner.html")
	require.NoError(t, os.WriteFile(banner, []byte(`<div><include src="missing.html"/></div>`), 0o600))

	require.Eventually(t, func() bool {
		return builder.failures.Load() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	w = get(srv, "/index.js")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "<nav>home</nav>")
	require.Equal(t, http.StatusOK, get(srv, "/").Code)

	// the missing partial is watched, creating it fixes the build
	time.Sleep(50 * time.Millisecond)
	missing := filepath.Join(base, "src", "partials", "missing.html")
	require.NoError(t, os.WriteFile(missing, []byte(`<aside>fixed</aside>`), 0o600))

	require.Eventually(t, func() bool {
		return strings.Contains(get(srv, "/index.js").Body.String(), "<aside>fixed</aside>")
	}, 5*time.Second, 10*time.Millisecond)
}
