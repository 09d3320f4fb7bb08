// Package health exposes liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/backend-florist/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips readiness; the API clears it when shutdown begins so load
// balancers drain traffic before the listener closes.
func SetReady(v bool) { ready.Store(v) }

// Probe checks one dependency.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
	// Optional probes report failures without failing readiness. Pricing can
	// still serve degraded quotes without them.
	Optional bool
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes []Probe
}

// ReadyReport is the readiness payload.
type ReadyReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe and answers 503 when a required one fails or the
// process is shutting down.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, ReadyReport{Status: "shutting_down", Checks: map[string]string{}})
		return
	}
	report := ReadyReport{Status: "ok", Checks: make(map[string]string, len(h.Probes))}
	status := http.StatusOK
	for _, p := range h.Probes {
		err := p.run(r.Context())
		if err == nil {
			report.Checks[p.Name] = "ok"
			continue
		}
		report.Checks[p.Name] = err.Error()
		if p.Optional {
			if report.Status == "ok" {
				report.Status = "degraded"
			}
			continue
		}
		report.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, report)
}

func (p Probe) run(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Check(ctx)
}
