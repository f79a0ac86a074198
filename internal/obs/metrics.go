package obs

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Published gauge names. All monetary values are minor currency units.
const (
	PaymentsCount24h    = "square_payments_count_24h"
	PaymentsValue24h    = "square_payments_value_24h"
	PaymentsAvgValue24h = "square_payments_avg_value_24h"
	RefundsCount24h     = "square_refunds_count_24h"
	RefundsValue24h     = "square_refunds_value_24h"
	ProductQuantity24h  = "square_product_quantity_24h"
	ProductValue24h     = "square_product_value_24h"

	PaymentsCountMTD    = "square_payments_count_mtd"
	PaymentsValueMTD    = "square_payments_value_mtd"
	PaymentsAvgValueMTD = "square_payments_avg_value_mtd"
	RefundsCountMTD     = "square_refunds_count_mtd"
	RefundsValueMTD     = "square_refunds_value_mtd"
)

// ProductLabel is the label carrying the line-item name.
const ProductLabel = "product"

// Sink is the write side of the metrics registry. Each call is atomic for a
// single series; there is no cross-series transaction.
type Sink interface {
	Set(name string, labels map[string]string, value float64)
	Delete(name string, labels map[string]string) bool
}

type gaugeDef struct {
	name   string
	help   string
	labels []string
}

var gaugeDefs = []gaugeDef{
	{PaymentsCount24h, "Number of payments in the trailing window", nil},
	{PaymentsValue24h, "Total value of payments in the trailing window (in minor currency units)", nil},
	{PaymentsAvgValue24h, "Average payment value in the trailing window (in minor currency units)", nil},
	{RefundsCount24h, "Number of refunds in the trailing window", nil},
	{RefundsValue24h, "Total value of refunds in the trailing window (in minor currency units)", nil},
	{ProductQuantity24h, "Quantity sold per product in the trailing window", []string{ProductLabel}},
	{ProductValue24h, "Value sold per product in the trailing window (in minor currency units)", []string{ProductLabel}},
	{PaymentsCountMTD, "Number of payments month to date", nil},
	{PaymentsValueMTD, "Total value of payments month to date (in minor currency units)", nil},
	{PaymentsAvgValueMTD, "Average payment value month to date (in minor currency units)", nil},
	{RefundsCountMTD, "Number of refunds month to date", nil},
	{RefundsValueMTD, "Total value of refunds month to date (in minor currency units)", nil},
}

// Metrics owns the prometheus registry, the published gauges and the
// exporter's own operational metrics.
type Metrics struct {
	Registry *prometheus.Registry
	gauges   map[string]*prometheus.GaugeVec

	CyclesTotal       *prometheus.CounterVec
	WindowFailures    *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	WindowLastSuccess *prometheus.GaugeVec
	OrderCacheLookups *prometheus.CounterVec
	APIRequests       *prometheus.CounterVec
}

// NewMetrics builds a fresh registry with every gauge registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		gauges:   make(map[string]*prometheus.GaugeVec, len(gaugeDefs)),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "square_exporter_cycles_total",
			Help: "Collection cycles by outcome",
		}, []string{"outcome"}),
		WindowFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "square_exporter_window_failures_total",
			Help: "Window aggregations that failed and were not published",
		}, []string{"window"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "square_exporter_cycle_duration_seconds",
			Help:    "Wall time of a collection cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		WindowLastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "square_exporter_window_last_success_timestamp_seconds",
			Help: "Unix time of the last successful publication per window",
		}, []string{"window"}),
		OrderCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "square_exporter_order_cache_lookups_total",
			Help: "Order cache lookups by result",
		}, []string{"result"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "square_exporter_api_requests_total",
			Help: "Requests sent to the Square API by resource and status code",
		}, []string{"resource", "code"}),
	}
	for _, d := range gaugeDefs {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: d.name, Help: d.help}, d.labels)
		m.gauges[d.name] = g
		reg.MustRegister(g)
	}
	reg.MustRegister(
		m.CyclesTotal,
		m.WindowFailures,
		m.CycleDuration,
		m.WindowLastSuccess,
		m.OrderCacheLookups,
		m.APIRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Set writes one series. Unknown names and label mismatches are logged and
// dropped.
func (m *Metrics) Set(name string, labels map[string]string, value float64) {
	g, ok := m.Gauge(name, labels)
	if !ok {
		return
	}
	g.Set(value)
}

// Delete removes one labelled series and reports whether it existed.
func (m *Metrics) Delete(name string, labels map[string]string) bool {
	vec, ok := m.gauges[name]
	if !ok {
		return false
	}
	return vec.Delete(labels)
}

// Gauge returns the series for name and labels.
func (m *Metrics) Gauge(name string, labels map[string]string) (prometheus.Gauge, bool) {
	vec, ok := m.gauges[name]
	if !ok {
		Logger.Warn("metric_unknown", "name", name)
		return nil, false
	}
	if labels == nil {
		labels = prometheus.Labels{}
	}
	g, err := vec.GetMetricWith(labels)
	if err != nil {
		Logger.Error("metric_labels_invalid", "name", name, "labels", sortedKeys(labels), "error", err)
		return nil, false
	}
	return g, true
}

// GaugeNames lists every published gauge name.
func GaugeNames() []string {
	out := make([]string, 0, len(gaugeDefs))
	for _, d := range gaugeDefs {
		out = append(out, d.name)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
