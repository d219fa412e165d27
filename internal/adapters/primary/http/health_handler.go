package http

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"
)

// HealthChecker defines the interface for health check dependencies
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// GatewayStats reports the realtime surface for the detailed health view.
type GatewayStats interface {
	ConnectionCount() int
}

// RoomStats reports room occupancy for the detailed health view.
type RoomStats interface {
	RoomCount() int
}

// HealthHandler handles health check requests
type HealthHandler struct {
	checks    map[string]HealthChecker
	gateway   GatewayStats
	rooms     RoomStats
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler. checks maps a dependency
// name (e.g. "database", "redis") to its checker; nil checkers are skipped.
func NewHealthHandler(checks map[string]HealthChecker, gateway GatewayStats, rooms RoomStats, version string) *HealthHandler {
	filtered := make(map[string]HealthChecker, len(checks))
	for name, checker := range checks {
		if checker != nil {
			filtered[name] = checker
		}
	}
	return &HealthHandler{
		checks:    filtered,
		gateway:   gateway,
		rooms:     rooms,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime,omitempty"`
	Checks    map[string]Check `json:"checks,omitempty"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HandleLiveness handles liveness probe requests (is the service running?)
// Used by Kubernetes to know when to restart a container
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// HandleReadiness handles readiness probe requests (can the service accept traffic?)
// Used by Kubernetes to know when to add the pod to the service
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, overallStatus := h.runChecks(ctx)

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// HandleHealth handles detailed health check requests (for monitoring/debugging)
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, overallStatus := h.runChecks(ctx)
	if overallStatus != "healthy" {
		overallStatus = "degraded"
	}

	// Add memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := struct {
		HealthResponse
		Realtime struct {
			Connections int `json:"connections"`
			Rooms       int `json:"rooms"`
		} `json:"realtime"`
		Memory struct {
			Alloc      uint64 `json:"alloc_bytes"`
			TotalAlloc uint64 `json:"total_alloc_bytes"`
			Sys        uint64 `json:"sys_bytes"`
			NumGC      uint32 `json:"num_gc"`
		} `json:"memory"`
		Goroutines int `json:"goroutines"`
	}{
		HealthResponse: HealthResponse{
			Status:    overallStatus,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
			Uptime:    time.Since(h.startTime).Round(time.Second).String(),
			Checks:    checks,
		},
		Goroutines: runtime.NumGoroutine(),
	}
	if h.gateway != nil {
		response.Realtime.Connections = h.gateway.ConnectionCount()
	}
	if h.rooms != nil {
		response.Realtime.Rooms = h.rooms.RoomCount()
	}
	response.Memory.Alloc = memStats.Alloc
	response.Memory.TotalAlloc = memStats.TotalAlloc
	response.Memory.Sys = memStats.Sys
	response.Memory.NumGC = memStats.NumGC

	statusCode := http.StatusOK
	if overallStatus == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// runChecks pings every registered dependency.
func (h *HealthHandler) runChecks(ctx context.Context) (map[string]Check, string) {
	checks := make(map[string]Check, len(h.checks))
	overallStatus := "healthy"

	for name, checker := range h.checks {
		start := time.Now()
		err := checker.Ping(ctx)
		latency := time.Since(start)

		if err != nil {
			checks[name] = Check{
				Status:  "unhealthy",
				Message: err.Error(),
				Latency: latency.String(),
			}
			overallStatus = "unhealthy"
			continue
		}
		checks[name] = Check{
			Status:  "healthy",
			Latency: latency.String(),
		}
	}

	return checks, overallStatus
}
