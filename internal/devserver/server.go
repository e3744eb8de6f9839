// Package devserver serves build output and rebuilds it when sources change.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/sitebundle/internal/assets"
	httpmiddleware "github.com/wolfeidau/sitebundle/internal/http"
	"github.com/wolfeidau/sitebundle/internal/telemetry"
	"github.com/wolfeidau/sitebundle/internal/watch"
)

type Config struct {
	// Listen address, e.g. "localhost:3000"
	Listen string
	// Directory served at the root URL
	Dir string
	// Origins allowed to fetch assets cross origin
	CORSOrigins []string
	// Quiet period before a change triggers a rebuild
	Debounce time.Duration
}

// Builder produces the output the server serves
type Builder interface {
	Build(ctx context.Context) (*assets.Result, error)
	Dependencies() []string
}

type Server struct {
	config  Config
	builder Builder
	logger  zerolog.Logger
}

func New(config Config, builder Builder, logger zerolog.Logger) *Server {
	return &Server{
		config:  config,
		builder: builder,
		logger:  logger,
	}
}

// Handler serves the output directory with compression, CORS and request logging
func (s *Server) Handler() http.Handler {
	var h http.Handler = http.FileServer(http.Dir(s.config.Dir))
	h = httpmiddleware.NoCache()(h)
	h = gzhttp.GzipHandler(h)

	if len(s.config.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
		}).Handler(h)
	}

	h = httpmiddleware.RequestLogger(s.logger)(h)
	return httpmiddleware.ClientIPMiddleware()(h)
}

// Run builds once, then serves until ctx is cancelled while rebuilding on changes. A
// failed rebuild is logged and the previous output keeps being served.
func (s *Server) Run(ctx context.Context) error {
	if _, err := s.builder.Build(ctx); err != nil {
		// the watcher below picks up the fix
		s.logger.Error().Err(err).Msg("Initial build failed")
	}

	watcher, err := watch.New(s.config.Debounce)
	if err != nil {
		return err
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to close watcher")
		}
	}()

	if err := watcher.Sync(s.builder.Dependencies()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to watch some dependencies")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- watcher.Watch(ctx, func(changed []string) {
			s.rebuild(ctx, watcher, changed)
		})
	}()

	srv := configureHTTPServer(s.config.Listen, s.Handler())

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Listen).Str("dir", s.config.Dir).Msg("Starting dev server")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("dev server failed: %w", err)
		}
	case err := <-watchErr:
		if err != nil {
			_ = srv.Close()
			return fmt.Errorf("file watcher failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	s.logger.Info().Msg("Shutting down dev server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) rebuild(ctx context.Context, watcher *watch.Watcher, changed []string) {
	telemetry.GetMetrics().RebuildsTriggeredTotal.Add(ctx, 1)
	s.logger.Info().Strs("changed", changed).Msg("Rebuilding")

	if _, err := s.builder.Build(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Rebuild failed")
	}

	if err := watcher.Sync(s.builder.Dependencies()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to watch some dependencies")
	}
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
