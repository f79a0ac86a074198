package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/square-exporter/internal/obs"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
)

// Prometheus announces its scrape deadline in this header.
const scrapeTimeoutHeader = "X-Prometheus-Scrape-Timeout-Seconds"

// Request kinds used in access log lines.
const (
	kindScrape = "scrape"
	kindProbe  = "probe"
	kindAPI    = "api"
)

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

// requestKind separates metric scrapes and liveness probes, which arrive
// every few seconds, from operator requests.
func requestKind(r *http.Request) string {
	switch r.URL.Path {
	case "/metrics":
		return kindScrape
	case "/healthz":
		return kindProbe
	default:
		return kindAPI
	}
}

// responseRecorder captures the status code and body size of a response.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *responseRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
	})
}

// WithLogging writes one access log line per request. Scrapes and probes
// are logged at debug level; scrapes also record the scraper and its
// deadline.
func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		kind := requestKind(r)
		attrs := []any{
			"kind", kind,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"latency_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"request_id", RequestIDFromContext(r.Context()),
		}
		level := slog.LevelInfo
		switch kind {
		case kindScrape:
			level = slog.LevelDebug
			attrs = append(attrs, "user_agent", r.UserAgent())
			if v := r.Header.Get(scrapeTimeoutHeader); v != "" {
				attrs = append(attrs, "scrape_timeout_seconds", v)
			}
		case kindProbe:
			level = slog.LevelDebug
		}
		obs.Logger.Log(r.Context(), level, "http_request", attrs...)
	})
}
