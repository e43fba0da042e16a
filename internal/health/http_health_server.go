package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dosdebug/broker/internal/logging"
)

// HTTPHealthServer serves a single health endpoint with thin
// delegation: all it does is call HealthAPI.GetHealth and serialize
// the result, following the teacher's http_health_server.go pattern.
type HTTPHealthServer struct {
	enabled   bool
	path      string
	host      string
	port      int
	logger    *logging.Logger
	healthAPI HealthAPI
	server    *http.Server
	startTime time.Time
}

// NewHTTPHealthServer creates a health server bound to host:port,
// serving healthAPI's response at path.
func NewHTTPHealthServer(enabled bool, host string, port int, path string, healthAPI HealthAPI, logger *logging.Logger) (*HTTPHealthServer, error) {
	if healthAPI == nil {
		return nil, fmt.Errorf("health API cannot be nil")
	}
	if logger == nil {
		logger = logging.GetLogger("health-server")
	}
	if path == "" {
		path = "/api/health"
	}

	hs := &HTTPHealthServer{
		enabled:   enabled,
		path:      path,
		host:      host,
		port:      port,
		logger:    logger,
		healthAPI: healthAPI,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, hs.handleHealth)

	hs.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	hs.logger.WithFields(logging.Fields{"host": host, "port": port, "path": path, "enabled": enabled}).Info("health server initialized")
	return hs, nil
}

// Start runs the server until ctx is canceled, then shuts it down.
func (hs *HTTPHealthServer) Start(ctx context.Context) error {
	if !hs.enabled {
		hs.logger.Info("health server is disabled")
		return nil
	}

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			hs.logger.WithError(err).Error("health server failed to start")
		}
	}()

	<-ctx.Done()
	return hs.Stop()
}

// Stop shuts the server down with a short grace period.
func (hs *HTTPHealthServer) Stop() error {
	if hs.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.server.Shutdown(ctx)
}

func (hs *HTTPHealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	response, err := hs.healthAPI.GetHealth(r.Context())
	if err != nil {
		hs.logger.WithError(err).Error("failed to get health status")
		hs.writeErrorResponse(w, http.StatusInternalServerError, "internal server error")
		return
	}

	hs.setResponseHeaders(w)
	statusCode := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	hs.writeJSONResponse(w, statusCode, response)
	hs.logRequest(r, time.Since(start), statusCode)
}

func (hs *HTTPHealthServer) setResponseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
}

func (hs *HTTPHealthServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.WithError(err).Error("failed to encode JSON response")
	}
}

func (hs *HTTPHealthServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	hs.setResponseHeaders(w)
	hs.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().Format(time.RFC3339),
		"status":    statusCode,
	})
}

func (hs *HTTPHealthServer) logRequest(r *http.Request, duration time.Duration, statusCode int) {
	hs.logger.WithFields(logging.Fields{
		"method":      r.Method,
		"remote_addr": r.RemoteAddr,
		"duration":    duration.String(),
		"status_code": statusCode,
	}).Debug("health request processed")
}
