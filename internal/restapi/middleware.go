package restapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/eapproval/internal/logger"
	"github.com/rafaeljc/eapproval/internal/observability"
)

// APIKeyHeader carries the key guarding administrative endpoints.
const APIKeyHeader = "X-API-Key"

// RequestLogger creates a middleware that injects a request-scoped logger
// (carrying the chi request ID) and logs the end of each request.
// 4xx responses are logged at Warn, 5xx at Error.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Get RequestID set by Chi's RequestID middleware
			reqID := middleware.GetReqID(r.Context())
			ctx := logger.WithRequestID(r.Context(), base, reqID)

			// Wrap the ResponseWriter to capture the status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			level := slog.LevelInfo
			status := ww.Status()
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}

			logger.FromContext(ctx).Log(ctx, level, "HTTP request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_ip", r.RemoteAddr),
			)
		})
	}
}

// Metrics records request count and latency labelled by the chi route
// pattern, never the raw path, to keep label cardinality bounded.
// Requests that match no route are collapsed into "not_found".
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "not_found"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		observability.HTTPReqDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		observability.HTTPReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

// authenticateAPIKey rejects requests whose X-API-Key does not hash to the
// configured SHA-256 value. The comparison is constant-time.
func (a *API) authenticateAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipAuth {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(APIKeyHeader)
		if key == "" || !a.validAPIKey(key) {
			logger.FromContext(r.Context()).Warn("rejected request with invalid API key",
				slog.String("path", r.URL.Path),
			)
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_UNAUTHORIZED",
				Message: "Missing or invalid API key",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) validAPIKey(key string) bool {
	sum := sha256.Sum256([]byte(key))
	provided := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(provided), []byte(a.apiKeyHash)) == 1
}
