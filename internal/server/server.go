package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nao1215/snapcrawl/internal/model"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = "127.0.0.1:8080"

	// shutdownTimeout bounds how long in-flight requests may run after
	// the context is cancelled.
	shutdownTimeout = 5 * time.Second
)

// Archive is the read side of the snapshot store.
type Archive interface {
	All() []*model.Snapshot
	Get(id string) (*model.Snapshot, bool)
	Stats() model.ArchiveStats
}

// ContentReader returns the stored page of a snapshot.
type ContentReader interface {
	ReadContent(id string) ([]byte, error)
}

// Server serves one archive directory.
type Server struct {
	dir     string
	archive Archive
	content ContentReader
	logger  *slog.Logger
	router  *chi.Mux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithContentReader enables the content endpoint.
func WithContentReader(content ContentReader) Option {
	return func(s *Server) {
		s.content = content
	}
}

// New creates a Server for the archive stored in dir.
func New(dir string, archive Archive, opts ...Option) *Server {
	s := &Server{
		dir:     dir,
		archive: archive,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/snapshots", s.handleList)
		r.Get("/snapshots/{id}", s.handleGet)
		r.Get("/snapshots/{id}/content", s.handleContent)
	})

	r.With(sandboxCaptures).Handle("/*", http.FileServer(http.Dir(s.dir)))
	return r
}

// captureFile is the file name of archived page content, see model.ContentPath.
var captureFile = path.Base(model.ContentPath("x"))

// sandboxCaptures serves archived page content in a sandbox with a unique
// origin, so scripts in a captured page cannot reach the API or the other
// snapshots.
func sandboxCaptures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path.Base(r.URL.Path) == captureFile {
			w.Header().Set("Content-Security-Policy", "sandbox")
			w.Header().Set("X-Content-Type-Options", "nosniff")
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving archive", "addr", ln.Addr().String(), "dir", s.dir)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.archive.Stats())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	domain := strings.ToLower(r.URL.Query().Get("domain"))

	snapshots := []*model.Snapshot{}
	for _, snap := range s.archive.All() {
		if domain != "" && snap.Domain != domain {
			continue
		}
		snapshots = append(snapshots, snap)
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.archive.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	if s.content == nil {
		writeError(w, http.StatusNotImplemented, "content is not available")
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := s.archive.Get(id); !ok {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	data, err := s.content.ReadContent(id)
	if err != nil {
		s.logger.Warn("failed to read snapshot content", "snapshot", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read content")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(data)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
