package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckFunc probes a single dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Status is the health state of a single check.
type Status struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type check struct {
	name     string
	fn       CheckFunc
	critical bool
}

// Handler runs registered dependency checks and serves liveness and
// readiness endpoints.
type Handler struct {
	mu      sync.RWMutex
	checks  []check
	timeout time.Duration
	service string
	version string
}

// NewHandler creates a health handler for the named service.
func NewHandler(service, version string) *Handler {
	return &Handler{
		timeout: 5 * time.Second,
		service: service,
		version: version,
	}
}

// RegisterCritical adds a check that must pass for readiness.
func (h *Handler) RegisterCritical(name string, fn CheckFunc) {
	h.register(name, fn, true)
}

// RegisterNonCritical adds a check whose failure is reported but does not
// make the service unready.
func (h *Handler) RegisterNonCritical(name string, fn CheckFunc) {
	h.register(name, fn, false)
}

func (h *Handler) register(name string, fn CheckFunc, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check{name: name, fn: fn, critical: critical})
}

type report struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Checks  map[string]Status `json:"checks,omitempty"`
}

// LivenessHandler reports that the process is running. It runs no checks.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, http.StatusOK, report{
			Status:  "alive",
			Service: h.service,
			Version: h.version,
		})
	}
}

// ReadinessHandler runs all registered checks concurrently and reports 503
// if any critical check fails.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		h.mu.RLock()
		checks := make([]check, len(h.checks))
		copy(checks, h.checks)
		h.mu.RUnlock()

		results := make(map[string]Status, len(checks))
		var (
			mu    sync.Mutex
			wg    sync.WaitGroup
			ready = true
		)

		for _, c := range checks {
			wg.Add(1)
			go func(c check) {
				defer wg.Done()
				st := Status{Healthy: true}
				if err := c.fn(ctx); err != nil {
					st = Status{Healthy: false, Error: err.Error()}
				}
				mu.Lock()
				results[c.name] = st
				if !st.Healthy && c.critical {
					ready = false
				}
				mu.Unlock()
			}(c)
		}
		wg.Wait()

		code := http.StatusOK
		status := "ready"
		if !ready {
			code = http.StatusServiceUnavailable
			status = "not_ready"
		}
		writeReport(w, code, report{
			Status:  status,
			Service: h.service,
			Version: h.version,
			Checks:  results,
		})
	}
}

func writeReport(w http.ResponseWriter, code int, rep report) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}
