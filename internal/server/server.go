// Package server exposes the recording store and recorder over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/sensorbench/sensorbench/internal/metrics"
	"github.com/sensorbench/sensorbench/internal/sample"
	"github.com/sensorbench/sensorbench/internal/store"
)

const (
	DefaultPreviewCacheTTL = 30 * time.Second
	shutdownTimeout        = 5 * time.Second
)

// Recorder triggers a capture. Implemented by recorder.Recorder and by fakes
// in tests.
type Recorder interface {
	Record(ctx context.Context, label string) (*sample.Recording, string, error)
}

type Config struct {
	Logger *slog.Logger

	// Store is the labeled recording store.
	Store *store.Store

	// Recorder triggers captures for POST /record. Optional: when nil the
	// endpoint answers 503, which lets the API serve a store browse-only
	// deployment without a device attached.
	Recorder Recorder

	// SmoothingWindow and SmoothingOrder parameterize preview smoothing.
	SmoothingWindow int
	SmoothingOrder  int

	// PreviewCacheTTL bounds how long parsed recordings are cached for
	// preview requests. Zero means DefaultPreviewCacheTTL.
	PreviewCacheTTL time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.SmoothingWindow <= 0 || c.SmoothingWindow%2 == 0 {
		return errors.New("smoothing window must be a positive odd number")
	}
	if c.SmoothingOrder < 0 || c.SmoothingOrder >= c.SmoothingWindow {
		return errors.New("smoothing order must be non-negative and below the window")
	}
	if c.PreviewCacheTTL == 0 {
		c.PreviewCacheTTL = DefaultPreviewCacheTTL
	}
	return nil
}

type Server struct {
	log   *slog.Logger
	cfg   Config
	cache *ttlcache.Cache[string, *sample.Recording]

	// Mux is exported so callers can mount the API under a larger handler.
	Mux *http.ServeMux
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		log: cfg.Logger,
		cfg: cfg,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *sample.Recording](cfg.PreviewCacheTTL),
		),
		Mux: http.NewServeMux(),
	}

	s.Mux.HandleFunc("GET /healthz", s.instrument("healthz", s.handleHealthz))
	s.Mux.HandleFunc("GET /labels", s.instrument("labels_list", s.handleLabelsList))
	s.Mux.HandleFunc("POST /labels", s.instrument("labels_create", s.handleLabelsCreate))
	s.Mux.HandleFunc("GET /labels/{label}/recordings", s.instrument("recordings_list", s.handleRecordingsList))
	s.Mux.HandleFunc("GET /recordings/{label}/{file}", s.instrument("recording_get", s.handleRecordingGet))
	s.Mux.HandleFunc("GET /recordings/{label}/{file}/preview", s.instrument("recording_preview", s.handleRecordingPreview))
	s.Mux.HandleFunc("DELETE /recordings/{label}/{file}", s.instrument("recording_delete", s.handleRecordingDelete))
	s.Mux.HandleFunc("POST /record", s.instrument("record", s.handleRecord))

	return s, nil
}

// Serve runs the HTTP server on the listener until the context is cancelled
// or the server fails.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go s.cache.Start()
	defer s.cache.Stop()

	srv := &http.Server{
		Handler: s.Mux,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("Server shutdown error", "error", err)
		} else {
			s.log.Info("Server shutdown via context")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			s.log.Info("Server closed")
			return nil
		}
		return err
	}
}

// statusRecorder captures the response code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h(rec, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	}
}
