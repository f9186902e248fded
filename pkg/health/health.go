// Package health provides Kubernetes-style liveness and readiness probe
// endpoints. Checks run at probe time with a per-check timeout; there is no
// background polling.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports the health of one component: nil means healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc
}

// Service manages liveness and readiness checks for a service.
type Service struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []check
	readiness []check
}

// New creates a health Service. It starts not ready; call SetReady(true) once
// initialization completes.
func New() *Service {
	return &Service{}
}

// AddLivenessCheck registers a liveness check. Liveness failures indicate the
// process itself is broken and should be restarted.
func (s *Service) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveness = append(s.liveness, check{name: name, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a readiness check. Readiness failures indicate
// the service should temporarily stop receiving traffic.
func (s *Service) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness = append(s.readiness, check{name: name, timeout: timeout, fn: fn})
}

// SetReady sets the manual readiness flag. Flip it to false during graceful
// shutdown to drain traffic before the listener closes.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// IsReady reports whether the service has been marked ready. Registered
// readiness checks are evaluated by ReadyEndpoint, not here.
func (s *Service) IsReady() bool {
	return s.ready.Load()
}

// LiveEndpoint serves the /livez probe: 200 when all liveness checks pass,
// 503 with per-check errors otherwise.
func (s *Service) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checks := s.liveness
	s.mu.RUnlock()

	writeStatus(w, runChecks(r.Context(), checks))
}

// ReadyEndpoint serves the /readyz probe: 200 when the service is marked ready
// and all readiness checks pass, 503 with details otherwise.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checks := s.readiness
	s.mu.RUnlock()

	failures := runChecks(r.Context(), checks)
	if !s.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

func runChecks(ctx context.Context, checks []check) map[string]string {
	failures := make(map[string]string)
	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.fn(checkCtx)
		cancel()
		if err != nil {
			failures[c.name] = err.Error()
		}
	}
	return failures
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
