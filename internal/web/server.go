package web

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/cjeanneret/sdcam/internal/debug"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr        string
	readTimeout time.Duration
	handlers    *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, readTimeout time.Duration, c Capturer, files FileStore) *Server {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("web: failed to sub static fs: %v", err)
	}

	return &Server{
		addr:        addr,
		readTimeout: readTimeout,
		handlers:    NewHandlers(c, files, subFS),
	}
}

// Mux returns an http.Handler with all routes registered.
// Requests are served one at a time.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /capture", s.handlers.HandleCapture)
	mux.HandleFunc("GET /list", s.handlers.HandleList)
	mux.HandleFunc("GET /view", s.handlers.HandleView)
	mux.HandleFunc("GET /delete", s.handlers.HandleDelete)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return requestLog(serialize(mux))
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
// No write timeout is set: a slow sensor or medium stalls the request, not the server.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: s.readTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		debug.Info("web server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
