// Package handlers implements the HTTP endpoints for the trellis server:
// lint, expand, and rules on the v1 API, plus health and version.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/3leaps/trellis/internal/errors"
)

// Health check outcome values reported per checker.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusTimeout   = "timeout"
)

// defaultCheckTimeout bounds each individual health check.
const defaultCheckTimeout = 2 * time.Second

// HealthChecker probes one dependency. A nil return means healthy.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthResponse is the body returned by the health endpoints when the
// service is serving.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// HealthManager runs registered checkers and aggregates their results.
type HealthManager struct {
	version      string
	checkTimeout time.Duration

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager returns a manager reporting the given version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:      version,
		checkTimeout: defaultCheckTimeout,
		checkers:     make(map[string]HealthChecker),
	}
}

// RegisterChecker adds a named checker. Registering the same name again
// replaces the previous checker.
func (m *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// HealthHandler runs all checkers and reports the aggregate status. An
// unhealthy aggregate returns 503 with the per-check results in the error
// details; healthy and degraded both serve 200.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == statusUnhealthy {
		apperrors.WriteJSONError(w, http.StatusServiceUnavailable, apperrors.HTTPErrorDetail{
			Code:    apperrors.CodeServiceUnavailable,
			Message: "one or more health checks failed",
			Details: map[string]any{"checks": checks},
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  status,
		Version: m.version,
		Checks:  checks,
	})
}

// LivenessHandler reports process liveness without running checkers.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  statusHealthy,
		Version: m.version,
		Checks:  map[string]string{},
	})
}

// ReadinessHandler runs all checkers; any failure means not ready.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// StartupHandler reports whether startup completed. Checkers run so that
// orchestration keeps probing until dependencies come up.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// runChecks executes every registered checker with a per-check timeout.
func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	checkers := make(map[string]HealthChecker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	checks := make(map[string]string, len(checkers))
	for name, checker := range checkers {
		checks[name] = m.runCheck(ctx, checker)
	}
	return checks
}

// runCheck executes one checker, classifying slow checkers as timeouts so
// a stuck dependency degrades rather than fails the probe.
func (m *HealthManager) runCheck(ctx context.Context, checker HealthChecker) string {
	ctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- checker.CheckHealth(ctx)
	}()

	select {
	case err := <-done:
		if err == nil {
			return statusHealthy
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return statusTimeout
		}
		return statusUnhealthy
	case <-ctx.Done():
		return statusTimeout
	}
}

// determineOverallStatus folds per-check results into one status. Any
// unhealthy check makes the aggregate unhealthy; timeouts alone degrade it.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := statusHealthy
	for _, result := range checks {
		switch result {
		case statusUnhealthy:
			return statusUnhealthy
		case statusTimeout, statusDegraded:
			status = statusDegraded
		}
	}
	return status
}

// globalHealthManager backs the package-level handler functions.
var globalHealthManager *HealthManager

// InitHealthManager creates the process health manager.
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the process health manager, or nil before
// InitHealthManager runs.
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

// HealthHandler serves the aggregate health of the process manager.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	m := GetHealthManager()
	if m == nil {
		writeHealthUninitialized(w)
		return
	}
	m.HealthHandler(w, r)
}

// LivenessHandler serves the liveness probe.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	m := GetHealthManager()
	if m == nil {
		writeHealthUninitialized(w)
		return
	}
	m.LivenessHandler(w, r)
}

// ReadinessHandler serves the readiness probe.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m := GetHealthManager()
	if m == nil {
		writeHealthUninitialized(w)
		return
	}
	m.ReadinessHandler(w, r)
}

// StartupHandler serves the startup probe.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	m := GetHealthManager()
	if m == nil {
		writeHealthUninitialized(w)
		return
	}
	m.StartupHandler(w, r)
}

func writeHealthUninitialized(w http.ResponseWriter) {
	apperrors.WriteJSONError(w, http.StatusServiceUnavailable, apperrors.HTTPErrorDetail{
		Code:    apperrors.CodeServiceUnavailable,
		Message: "health manager not initialized",
	})
}
