package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"restack-guard/internal/credentials"
	"restack-guard/internal/model"
	"restack-guard/internal/service"
	"restack-guard/internal/upstream"
	"restack-guard/pkg/apierror"
	"restack-guard/pkg/response"
)

// Scanner is the scheduler surface the dashboard drives.
type Scanner interface {
	StatusReporter
	LastResult() *model.CycleResult
	Authenticate(ctx context.Context) error
	Start() error
	Stop()
	RunNow(ctx context.Context) (*model.CycleResult, error)
}

// ScannerHandler exposes the session controller over HTTP.
type ScannerHandler struct {
	scanner Scanner
}

// NewScannerHandler creates a scanner handler.
func NewScannerHandler(scanner Scanner) *ScannerHandler {
	return &ScannerHandler{scanner: scanner}
}

// GetStatus handles GET /api/v1/scanner/status
func (h *ScannerHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.scanner.Status())
}

// GetResults handles GET /api/v1/scanner/results
func (h *ScannerHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	result := h.scanner.LastResult()
	if result == nil {
		response.Error(w, apierror.NotFound("No scan cycle has completed yet"))
		return
	}
	response.OK(w, result)
}

// Authenticate handles POST /api/v1/scanner/authenticate
func (h *ScannerHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	if err := h.scanner.Authenticate(r.Context()); err != nil {
		log.Printf("[ScannerHandler] Authenticate failed: %v", err)
		response.Error(w, toAPIError(err))
		return
	}
	response.OK(w, h.scanner.Status())
}

// Start handles POST /api/v1/scanner/start
func (h *ScannerHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.scanner.Start(); err != nil {
		response.Error(w, toAPIError(err))
		return
	}
	response.Accepted(w, h.scanner.Status())
}

// Stop handles POST /api/v1/scanner/stop
func (h *ScannerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.scanner.Stop()
	response.OK(w, h.scanner.Status())
}

// Scan handles POST /api/v1/scanner/scan and runs one cycle synchronously.
func (h *ScannerHandler) Scan(w http.ResponseWriter, r *http.Request) {
	result, err := h.scanner.RunNow(r.Context())
	if err != nil {
		log.Printf("[ScannerHandler] Manual scan failed: %v", err)
		response.Error(w, toAPIError(err))
		return
	}
	response.OK(w, result)
}

// toAPIError maps scanner errors onto HTTP errors.
func toAPIError(err error) *apierror.Error {
	switch {
	case errors.Is(err, service.ErrNotAuthenticated),
		errors.Is(err, service.ErrAlreadyScanning),
		errors.Is(err, service.ErrCycleInProgress):
		return apierror.Conflict(err.Error())
	case errors.Is(err, credentials.ErrAuthFailure):
		return apierror.BadGateway(err.Error())
	case upstream.IsAuthExpired(err):
		return apierror.BadGateway("Upstream credentials expired; re-authentication attempted")
	case errors.Is(err, context.DeadlineExceeded):
		return apierror.ServiceUnavailable("Scan timed out")
	default:
		return apierror.InternalError("")
	}
}
