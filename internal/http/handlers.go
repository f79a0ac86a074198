package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fairyhunter13/square-exporter/internal/config"
	httpopenapi "github.com/fairyhunter13/square-exporter/internal/http/openapi"
	"github.com/fairyhunter13/square-exporter/internal/obs"
	"github.com/fairyhunter13/square-exporter/internal/scheduler"
)

// StatusProvider reports the last finished collection cycle.
type StatusProvider interface {
	Status() (scheduler.Status, bool)
}

// CacheStats reports order cache usage.
type CacheStats interface {
	Len() int
	Stats() (hits, misses uint64)
}

type App struct {
	Cfg      config.Config
	Metrics  *obs.Metrics
	Cycles   StatusProvider
	Cache    CacheStats
	Currency string
	started  time.Time
}

type cycleResp struct {
	Cycle           scheduler.Status `json:"cycle"`
	Currency        string           `json:"currency"`
	WindowHours     int              `json:"window_hours"`
	IntervalSeconds float64          `json:"interval_seconds"`
	OrderCache      cacheResp        `json:"order_cache"`
	UptimeSec       float64          `json:"uptime_sec"`
}

type cacheResp struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

func NewApp(cfg config.Config, m *obs.Metrics, cycles StatusProvider, cache CacheStats, currency string) *App {
	return &App{Cfg: cfg, Metrics: m, Cycles: cycles, Cache: cache, Currency: currency, started: time.Now()}
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *App) cycleHandler(w http.ResponseWriter, r *http.Request) {
	st, ok := a.Cycles.Status()
	if !ok {
		WriteJSONError(w, r, http.StatusServiceUnavailable, "no_cycle_yet", "first collection cycle has not finished")
		return
	}
	resp := cycleResp{
		Cycle:           st,
		Currency:        a.Currency,
		WindowHours:     a.Cfg.WindowHours,
		IntervalSeconds: a.Cfg.Interval().Seconds(),
		UptimeSec:       time.Since(a.started).Seconds(),
	}
	if a.Cache != nil {
		resp.OrderCache.Entries = a.Cache.Len()
		resp.OrderCache.Hits, resp.OrderCache.Misses = a.Cache.Stats()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *App) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSONError(w, r, http.StatusNotFound, "not_found", "")
}

func (a *App) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "")
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Square Exporter API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
