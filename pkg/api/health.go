package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/burrow/pkg/secrets"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// healthHandler implements the /health endpoint
// This is a simple liveness check - returns 200 if the process is alive
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   s.svc.Version(),
	})
}

// readyHandler implements the /ready endpoint
// This checks if the service is ready to accept agent traffic
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true

	// Check 1: dynamic resource table loaded
	if s.dynamic == nil {
		checks["dynamic_resources"] = "not initialized"
		ready = false
	} else {
		checks["dynamic_resources"] = fmt.Sprintf("%d overrides", s.dynamic.Len())
	}

	// Check 2: master keys minted
	if s.keys.CurrentKey(secrets.KeyKindContainerToken) == nil || s.keys.CurrentKey(secrets.KeyKindNMToken) == nil {
		checks["keys"] = "master keys not initialized"
		ready = false
	} else {
		checks["keys"] = "ok"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	})
}
