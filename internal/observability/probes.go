package observability

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/render"
)

// ReadinessResponse is the body of the readiness probe.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// liveness responds with 200 OK if the HTTP server is running.
// It is used by Kubernetes to restart the pod if the process is deadlocked.
func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness runs every registered checker in parallel.
// It returns 200 only if all of them pass, so traffic is held back until the
// ruleset is loaded and the configured backends answer.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	resp := ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(s.checkers))}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, checker := range s.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				// WARN, not ERROR: the orchestrator retries the probe.
				s.logger.Warn("health probe failed",
					slog.String("component", c.Name()),
					slog.String("error", err.Error()),
				)
				resp.Checks[c.Name()] = "down: " + err.Error()
				resp.Status = "not_ready"
				return
			}
			resp.Checks[c.Name()] = "up"
		}(checker)
	}

	wg.Wait()

	if resp.Status != "ready" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}
