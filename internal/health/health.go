// Package health serves the liveness and readiness probes for the Jack
// server.
//
//   - /healthz answers 200 whenever the process can still serve HTTP; the
//     WhatsApp gateway uses it to decide whether to queue or bounce traffic.
//   - /readyz answers 200 only while every registered [Checker] passes —
//     TinRed reachable, the configured providers constructed, the session
//     store responsive — and 503 otherwise.
//
// Both endpoints reply with a JSON body: a "status" of "ok" or "fail" plus a
// per-checker "checks" map, so an operator can see which dependency dragged
// readiness down.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds one checker run. A probe that cannot answer within it
// counts as down; the TinRed identify round-trip normally takes well under a
// second.
const checkTimeout = 5 * time.Second

// Checker is one named dependency probe. Check returns nil while the
// dependency is usable and must respect context cancellation.
type Checker struct {
	// Name keys the probe in the JSON response ("tinred", "llm", "sessions").
	Name string

	Check func(ctx context.Context) error
}

// result is the response body shared by both endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the two probe endpoints. The checker list is fixed at
// construction, which keeps the handler safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] over the given checkers. They run sequentially, in
// the order given, on every /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz answers the liveness probe. Serving the request is the proof.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every checker under its own [checkTimeout] and answers 503 as
// soon as any of them reports a failure.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, ready := h.probe(r.Context())

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !ready {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// probe evaluates all checkers and reports the per-checker outcomes.
func (h *Handler) probe(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string, len(h.checkers))
	ready := true

	for _, c := range h.checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			ready = false
			continue
		}
		checks[c.Name] = "ok"
	}
	return checks, ready
}

// Register adds both probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
