package handler

import (
	"net/http"
	"runtime"
	"time"

	"restack-guard/internal/service"
	"restack-guard/pkg/response"
)

// StatusReporter is the read side of the scheduler.
type StatusReporter interface {
	Status() service.Status
}

// Handler serves liveness and readiness.
type Handler struct {
	scanner   StatusReporter
	service   string
	version   string
	startTime time.Time
}

// New creates a health handler.
func New(scanner StatusReporter, serviceName, version string) *Handler {
	return &Handler{
		scanner:   scanner,
		service:   serviceName,
		version:   version,
		startTime: time.Now(),
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Ready        bool          `json:"ready"`
	Timestamp    time.Time     `json:"timestamp"`
	ScannerState service.State `json:"scannerState"`
	HaltReason   string        `json:"haltReason,omitempty"`
}

// Ready handles GET /api/v1/ready. Only a scanning scheduler is ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	st := h.scanner.Status()
	resp := ReadyResponse{
		Ready:        st.State == service.StateScanning,
		Timestamp:    time.Now().UTC(),
		ScannerState: st.State,
		HaltReason:   st.HaltReason,
	}

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, code, resp)
}

// StatusChecks are the checks in the status response.
type StatusChecks struct {
	Scanner  service.State `json:"scanner"`
	MemoryMB float64       `json:"memory_mb"`
}

// StatusResponse is the compact status used by uptime bots.
type StatusResponse struct {
	Service       string       `json:"service"`
	Status        string       `json:"status"`
	Timestamp     string       `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Checks        StatusChecks `json:"checks"`
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryMB := float64(memStats.Alloc) / 1024 / 1024

	st := h.scanner.Status()
	status := "ok"
	if st.State != service.StateScanning {
		status = "degraded"
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	response.OK(w, StatusResponse{
		Service:       h.service,
		Status:        status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks: StatusChecks{
			Scanner:  st.State,
			MemoryMB: float64(int(memoryMB*100)) / 100,
		},
	})
}
