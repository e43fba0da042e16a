package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dosdebug/broker/internal/backend"
	"github.com/dosdebug/broker/internal/capture"
	"github.com/dosdebug/broker/internal/config"
	"github.com/dosdebug/broker/internal/logging"
	"github.com/dosdebug/broker/internal/security"
	"github.com/dosdebug/broker/internal/wsbroker"
)

// Server is the HTTP control surface: backend selection, launch,
// register/memory/screenshot access, breakpoints, execution control,
// snapshots, and the capture/golden endpoints.
//
// Grounded on the teacher's HTTPHealthServer (plain http.Server over a
// ServeMux, thin handlers delegating straight to a domain object) with
// routing expanded to the full REST surface spec.md §6 defines, and
// mutating routes wrapped in security.AuthMiddleware the way the
// teacher's WebSocketServer gates JSON-RPC methods by role.
type Server struct {
	cfg     *config.ConfigManager
	holder  *backend.Holder
	factory *backend.Factory
	pipeline *capture.Pipeline
	broker  *wsbroker.Broker
	auth    *security.AuthMiddleware
	logger  *logging.Logger

	server *http.Server
}

// New constructs a Server. auth may be nil to run the management
// endpoints unauthenticated (used by tests); cmd/debugbrokerd supplies
// one whenever security.require_auth is set.
func New(cfg *config.ConfigManager, holder *backend.Holder, factory *backend.Factory, pipeline *capture.Pipeline, broker *wsbroker.Broker, auth *security.AuthMiddleware, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetLogger("apiserver")
	}
	s := &Server{
		cfg:      cfg,
		holder:   holder,
		factory:  factory,
		pipeline: pipeline,
		broker:   broker,
		auth:     auth,
		logger:   logger,
	}
	return s
}

// Handler builds the routed http.Handler. Exposed separately from
// Start so tests can drive it with httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/backend", s.handleGetBackend)
	mux.Handle("POST /api/backend/select", s.gate(s.handleSelectBackend))

	mux.HandleFunc("GET /api/launch/defaults", s.handleLaunchDefaults)
	mux.Handle("POST /api/launch", s.gate(s.handleLaunch))
	mux.Handle("DELETE /api/launch", s.gate(s.handleLaunchDelete))

	mux.HandleFunc("GET /api/registers", s.handleGetRegisters)
	mux.HandleFunc("GET /api/memory/{addr}/{size}", s.handleReadMemory)
	mux.Handle("POST /api/memory/{addr}", s.gate(s.handleWriteMemory))
	mux.HandleFunc("GET /api/screenshot", s.handleScreenshot)
	mux.Handle("POST /api/keys", s.gate(s.handleSendKeys))

	mux.HandleFunc("GET /api/breakpoints", s.handleListBreakpoints)
	mux.Handle("POST /api/breakpoints", s.gate(s.handleSetBreakpoint))
	mux.Handle("DELETE /api/breakpoints/{id}", s.gate(s.handleRemoveBreakpoint))

	mux.Handle("POST /api/execution/pause", s.gate(s.handlePause))
	mux.Handle("POST /api/execution/resume", s.gate(s.handleResume))
	mux.Handle("POST /api/execution/step", s.gate(s.handleStep))

	mux.HandleFunc("GET /api/snapshots", s.handleListSnapshots)
	mux.Handle("POST /api/snapshots", s.gate(s.handleSnapshotAction))
	mux.HandleFunc("GET /api/states", s.handleListSnapshots)

	mux.Handle("POST /api/captures", s.gate(s.handleCapture))
	mux.HandleFunc("GET /api/captures", s.handleListCaptures)
	mux.Handle("POST /api/golden/generate", s.gate(s.handleGoldenGenerate))
	mux.Handle("POST /api/golden/compare", s.gate(s.handleGoldenCompare))

	mux.HandleFunc("/ws", s.broker.HandleWS)

	return mux
}

// gate wraps a mutating handler behind the auth middleware, when one
// is configured.
func (s *Server) gate(h http.HandlerFunc) http.Handler {
	if s.auth == nil {
		return h
	}
	return s.auth.RequireAuth(h)
}

// Start runs the HTTP server until ctx is canceled, then shuts it down.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("apiserver failed")
		}
	}()

	s.logger.WithFields(logging.Fields{"host": host, "port": port}).Info("apiserver started")

	<-ctx.Done()
	return s.Stop()
}

// Stop shuts the server down with a short grace period.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 15*time.Second)
}
