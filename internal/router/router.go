package router

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/account"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/analysis"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/history"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/report"
	"github.com/ovaphlow/pitchfork/service-pathology/pkg/utilities"
)

const (
	Prefix          = "/pathology-api"
	RequestIDHeader = "X-Request-Id"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs each request at debug level, tagged with a snowflake
// request id that is echoed in the X-Request-Id response header.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = utilities.NewSnowflakeID()
			}
			w.Header().Set(RequestIDHeader, reqID)
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// slide images may be inline data URLs
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data:; object-src 'none'; base-uri 'self';")
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers groups the domain handlers mounted by RegisterRoutes.
type Handlers struct {
	Account  *account.Handler
	History  *history.Handler
	Analysis *analysis.Handler
	Report   *report.Handler
	Store    Pinger
}

// RegisterRoutes mounts HTTP handlers on the standard library's http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, h Handlers) http.Handler {
	mux := http.NewServeMux()
	auth := h.Account.RequireSession

	mux.HandleFunc("GET "+Prefix+"/health", func(w http.ResponseWriter, r *http.Request) {
		if h.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := h.Store.Ping(ctx); err != nil {
				logger.Warnw("health check failed", "err", err)
				http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET "+Prefix+"/metrics", metrics.Handler())

	// account
	mux.HandleFunc("POST "+Prefix+"/signup", h.Account.Signup)
	mux.HandleFunc("POST "+Prefix+"/login", h.Account.Login)
	mux.HandleFunc("POST "+Prefix+"/logout", auth(h.Account.Logout))
	mux.HandleFunc("GET "+Prefix+"/me", auth(h.Account.Me))
	mux.HandleFunc("PUT "+Prefix+"/me", auth(h.Account.UpdateMe))

	// history
	mux.HandleFunc("GET "+Prefix+"/history", auth(h.History.List))
	mux.HandleFunc("DELETE "+Prefix+"/history", auth(h.History.Clear))
	mux.HandleFunc("GET "+Prefix+"/history/{id}", auth(h.History.Get))
	mux.HandleFunc("GET "+Prefix+"/history/{id}/transcript", auth(h.Report.Transcript))

	// analysis
	mux.HandleFunc("POST "+Prefix+"/analyses", auth(h.Analysis.Create))
	mux.HandleFunc("GET "+Prefix+"/slides/{key...}", auth(h.Analysis.Slide))

	// edit session
	mux.HandleFunc("POST "+Prefix+"/history/{id}/edit", auth(h.Report.Open))
	mux.HandleFunc("GET "+Prefix+"/edit", auth(h.Report.Show))
	mux.HandleFunc("PATCH "+Prefix+"/edit", auth(h.Report.Edit))
	mux.HandleFunc("POST "+Prefix+"/edit/commit", auth(h.Report.Commit))
	mux.HandleFunc("DELETE "+Prefix+"/edit", auth(h.Report.Cancel))

	return LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
}
