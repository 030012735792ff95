package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

// HTTP is a tiny wrapper around standard net/http.
// The server is closed when the context passed to ListenAndServe is cancelled.
type HTTP struct {
	*httprouter.Router
	server http.Server
}

// NewHTTP creates a new HTTP wrapper listening on addr.
func NewHTTP(addr string) *HTTP {
	router := httprouter.New()
	h := &HTTP{Router: router}
	h.server = http.Server{
		Addr:              addr,
		Handler:           logRequests(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return h
}

// Handler returns the root handler, request logging included.
func (h *HTTP) Handler() http.Handler {
	return h.server.Handler
}

// ListenAndServe runs the server until it fails or ctx is done.
func (h *HTTP) ListenAndServe(ctx context.Context) error {
	defer log.Debug("HTTP server terminated")

	h.server.BaseContext = func(_ net.Listener) context.Context {
		return ctx
	}
	go func() {
		<-ctx.Done()
		h.server.Close()
	}()

	log.Infof("Starting HTTP server on %s", h.server.Addr)
	err := h.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return trace.Wrap(err)
}

// Shutdown stops the server gracefully.
func (h *HTTP) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// ShutdownWithTimeout stops the server gracefully.
func (h *HTTP) ShutdownWithTimeout(ctx context.Context, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	return h.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("Handled request")
	})
}
