// Package server exposes the tick flow and the integration descriptor over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bassamadnan/mailreminder/gmail"
	"github.com/bassamadnan/mailreminder/tick"
	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

const (
	DescriptorPath     = "/api/integration.json"
	RootDescriptorPath = "/integration.json"
	TickPath           = "/api/tick"
	UnrepliedPath      = "/api/gmail/unreplied"
	SnapshotPath       = "/api/snapshot"

	shutdownTimeout = 5 * time.Second
)

// Ticker is the part of tick.Service the handlers use.
type Ticker interface {
	Run(ctx context.Context, opts tick.Options) (tick.Result, error)
	Snapshot() ([]gmail.UnrepliedEmail, error)
}

// Config configures the routes.
type Config struct {
	Listen string
	// Descriptor is served verbatim.
	Descriptor     []byte
	RootDescriptor bool
	Unreplied      bool
	Ticker         Ticker
}

// TickResponse is returned by POST /api/tick.
type TickResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// UnrepliedResponse is returned by GET /api/gmail/unreplied.
type UnrepliedResponse struct {
	Count  int                    `json:"count"`
	Emails []gmail.UnrepliedEmail `json:"emails"`
}

// ErrorResponse carries the message of any failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server serves the integration endpoints.
type Server struct {
	http *HTTP
	conf Config
}

func New(conf Config) (*Server, error) {
	if conf.Ticker == nil {
		return nil, trace.BadParameter("missing ticker")
	}
	if len(conf.Descriptor) == 0 {
		return nil, trace.BadParameter("missing descriptor")
	}
	s := &Server{http: NewHTTP(conf.Listen), conf: conf}

	s.http.GET(DescriptorPath, s.handleDescriptor)
	if conf.RootDescriptor {
		s.http.GET(RootDescriptorPath, s.handleDescriptor)
	}
	s.http.POST(TickPath, s.handleTick)
	if conf.Unreplied {
		s.http.GET(UnrepliedPath, s.handleUnreplied)
	}
	s.http.GET(SnapshotPath, s.handleSnapshot)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler()
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errC := make(chan error, 1)
	serveCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { errC <- s.http.ListenAndServe(serveCtx) }()

	select {
	case err := <-errC:
		return trace.Wrap(err)
	case <-ctx.Done():
	}
	log.Info("Shutting down HTTP server")
	if err := s.http.ShutdownWithTimeout(context.Background(), shutdownTimeout); err != nil {
		log.WithError(err).Warn("Graceful shutdown failed, closing")
	}
	cancel()
	return trace.Wrap(<-errC)
}

func (s *Server) handleDescriptor(rw http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	rw.Write(s.conf.Descriptor)
}

// handleTick runs to completion even when the caller goes away.
func (s *Server) handleTick(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	result, err := s.conf.Ticker.Run(context.WithoutCancel(r.Context()), tick.Options{Notify: true})
	if err != nil {
		s.fail(rw, "Tick failed", err)
		return
	}
	writeJSON(rw, http.StatusAccepted, TickResponse{Status: "accepted", Count: result.Count()})
}

func (s *Server) handleUnreplied(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	result, err := s.conf.Ticker.Run(context.WithoutCancel(r.Context()), tick.Options{})
	if err != nil {
		s.fail(rw, "Fetching unreplied emails failed", err)
		return
	}
	writeJSON(rw, http.StatusOK, UnrepliedResponse{Count: result.Count(), Emails: nonNil(result.Emails)})
}

func (s *Server) handleSnapshot(rw http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	emails, err := s.conf.Ticker.Snapshot()
	if err != nil {
		s.fail(rw, "Reading snapshot failed", err)
		return
	}
	writeJSON(rw, http.StatusOK, nonNil(emails))
}

func (s *Server) fail(rw http.ResponseWriter, msg string, err error) {
	log.WithError(err).Error(msg)
	log.Debugf("%v", trace.DebugReport(err))
	writeJSON(rw, http.StatusInternalServerError, ErrorResponse{Error: trace.UserMessage(err)})
}

func writeJSON(rw http.ResponseWriter, code int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

func nonNil(emails []gmail.UnrepliedEmail) []gmail.UnrepliedEmail {
	if emails == nil {
		return []gmail.UnrepliedEmail{}
	}
	return emails
}
