package handler

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"restack-guard/internal/service"
	"restack-guard/pkg/apierror"
	"restack-guard/pkg/response"

	"github.com/go-chi/chi/v5"
)

// StateReader exposes the dedup sets to operators.
type StateReader interface {
	Counts(ctx context.Context) (service.StateCounts, error)
	Members(ctx context.Context, set string) ([]string, error)
}

// AdminHandler serves operator statistics.
type AdminHandler struct {
	scanner   StatusReporter
	state     StateReader
	storeType string
	startTime time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(scanner StatusReporter, state StateReader, storeType string) *AdminHandler {
	return &AdminHandler{
		scanner:   scanner,
		state:     state,
		storeType: storeType,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	st := h.scanner.Status()
	stats["scanner"] = st

	store := map[string]interface{}{"type": h.storeType}
	if counts, err := h.state.Counts(r.Context()); err != nil {
		store["status"] = "error"
		store["error"] = err.Error()
	} else {
		store["status"] = "connected"
		store["voided_checkouts"] = counts.VoidedCheckouts
		store["alerted_over_pos"] = counts.AlertedOverPOs
	}
	stats["state_store"] = store

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// GetStateMembers handles GET /api/v1/admin/state/{set}
func (h *AdminHandler) GetStateMembers(w http.ResponseWriter, r *http.Request) {
	set := chi.URLParam(r, "set")
	members, err := h.state.Members(r.Context(), set)
	if err != nil {
		if errors.Is(err, service.ErrUnknownSet) {
			response.Error(w, apierror.NotFound("Unknown state set: "+set))
			return
		}
		response.Error(w, apierror.InternalError(err.Error()))
		return
	}
	if members == nil {
		members = []string{}
	}
	response.OK(w, map[string]interface{}{
		"set":     set,
		"count":   len(members),
		"members": members,
	})
}
