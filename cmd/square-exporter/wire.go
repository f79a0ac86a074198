package main

import (
	"context"

	"github.com/fairyhunter13/square-exporter/internal/collector"
	"github.com/fairyhunter13/square-exporter/internal/config"
	"github.com/fairyhunter13/square-exporter/internal/obs"
	"github.com/fairyhunter13/square-exporter/internal/square"
	"github.com/fairyhunter13/square-exporter/internal/store"
)

// exporter bundles the collection pipeline built from one Config.
type exporter struct {
	cfg        config.Config
	metrics    *obs.Metrics
	client     *square.Client
	cache      *store.OrderCache
	controller *collector.Controller
	currency   string
}

func newExporter(ctx context.Context, cfg config.Config) *exporter {
	m := obs.NewMetrics()
	client := square.New(square.Options{
		BaseURL:    cfg.APIBase,
		Token:      cfg.AccessToken,
		LocationID: cfg.LocationID,
		APIVersion: cfg.APIVersion,
		Timeout:    cfg.RequestTimeout,
		RPS:        cfg.APIRPS,
		Burst:      cfg.APIBurst,
		OnResponse: func(resource, code string) {
			m.APIRequests.WithLabelValues(resource, code).Inc()
		},
	})
	currency := detectCurrency(ctx, client)

	cache := store.New(client, cfg.OrderCacheSize, cfg.OrderCacheTTL)
	cache.OnLookup = func(result string) {
		m.OrderCacheLookups.WithLabelValues(result).Inc()
	}
	ctrl := collector.NewController(collector.NewAggregator(client, cache), m, collector.Options{
		Trailing: cfg.Window(),
		Currency: currency,
		Self:     m,
	})
	return &exporter{cfg: cfg, metrics: m, client: client, cache: cache, controller: ctrl, currency: currency}
}

// detectCurrency looks up the location currency. Failure is not fatal: the
// currency only decorates log lines.
func detectCurrency(ctx context.Context, client *square.Client) string {
	cur, err := client.LocationCurrency(ctx)
	if err != nil {
		obs.Logger.Warn("currency_lookup_failed", "error", err)
		return ""
	}
	if cur == "" {
		obs.Logger.Warn("currency_unknown", "detail", "location has no currency; values stay in minor units")
		return ""
	}
	obs.Logger.Info("currency_detected", "currency", cur)
	return cur
}
