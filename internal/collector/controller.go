package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/square-exporter/internal/model"
	"github.com/fairyhunter13/square-exporter/internal/obs"
)

// Window names a published aggregation window.
type Window string

const (
	Trailing    Window = "trailing"
	MonthToDate Window = "month_to_date"
)

// WindowError reports a window whose aggregation failed. Nothing was
// published for that window in the cycle.
type WindowError struct {
	Window Window
	Err    error
}

func (e *WindowError) Error() string { return fmt.Sprintf("window %s: %v", e.Window, e.Err) }

func (e *WindowError) Unwrap() error { return e.Err }

// WindowAggregator computes one WindowResult.
type WindowAggregator interface {
	Aggregate(ctx context.Context, w model.TimeWindow, includeProducts bool) (model.WindowResult, error)
}

type metricNames struct {
	count, total, avg          string
	refundCount, refundTotal   string
	productCount, productValue string
}

var schema = map[Window]metricNames{
	Trailing: {
		count:        obs.PaymentsCount24h,
		total:        obs.PaymentsValue24h,
		avg:          obs.PaymentsAvgValue24h,
		refundCount:  obs.RefundsCount24h,
		refundTotal:  obs.RefundsValue24h,
		productCount: obs.ProductQuantity24h,
		productValue: obs.ProductValue24h,
	},
	MonthToDate: {
		count:       obs.PaymentsCountMTD,
		total:       obs.PaymentsValueMTD,
		avg:         obs.PaymentsAvgValueMTD,
		refundCount: obs.RefundsCountMTD,
		refundTotal: obs.RefundsValueMTD,
	},
}

// Options configures a Controller.
type Options struct {
	// Trailing is the length of the trailing window.
	Trailing time.Duration
	// Currency is only used in log lines.
	Currency string
	// Self receives the exporter's operational metrics; optional.
	Self *obs.Metrics
}

// Controller runs one collection cycle: two windows, aggregated in turn
// and published window by window.
type Controller struct {
	agg  WindowAggregator
	sink obs.Sink
	opts Options

	mu       sync.Mutex
	products map[string]struct{}
}

// NewController constructs a Controller.
func NewController(agg WindowAggregator, sink obs.Sink, opts Options) *Controller {
	if opts.Trailing <= 0 {
		opts.Trailing = 24 * time.Hour
	}
	return &Controller{agg: agg, sink: sink, opts: opts, products: map[string]struct{}{}}
}

// CycleReport holds the results published by a cycle. A nil entry means
// the window failed and its previous values were left in place.
type CycleReport struct {
	Windows     map[Window]model.TimeWindow `yaml:"-" json:"-"`
	Trailing    *model.WindowResult         `yaml:"trailing,omitempty" json:"trailing,omitempty"`
	MonthToDate *model.WindowResult         `yaml:"month_to_date,omitempty" json:"month_to_date,omitempty"`
}

// Windows derives the trailing and month-to-date windows ending at now.
// ok is false for the month-to-date window when now is the first instant
// of the month, since that window is empty.
func Windows(now time.Time, trailing time.Duration) (tw, mtd model.TimeWindow, ok bool, err error) {
	now = now.UTC().Truncate(time.Second)
	tw, err = model.NewTimeWindow(now.Add(-trailing), now)
	if err != nil {
		return model.TimeWindow{}, model.TimeWindow{}, false, err
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if !monthStart.Before(now) {
		return tw, model.TimeWindow{Start: monthStart, End: now}, false, nil
	}
	mtd, err = model.NewTimeWindow(monthStart, now)
	return tw, mtd, err == nil, err
}

// RunCycle aggregates and publishes both windows for the instant now. A
// failing window is logged, counted and skipped; the other window is still
// attempted. The returned error joins every WindowError of the cycle.
func (c *Controller) RunCycle(ctx context.Context, now time.Time) (CycleReport, error) {
	log := obs.FromContext(ctx)
	tw, mtd, mtdOK, err := Windows(now, c.opts.Trailing)
	if err != nil {
		return CycleReport{}, err
	}
	report := CycleReport{Windows: map[Window]model.TimeWindow{Trailing: tw, MonthToDate: mtd}}
	log.Info("collecting_metrics",
		"begin_time", tw.BeginParam(),
		"end_time", tw.EndParam(),
		"mtd_begin_time", mtd.BeginParam(),
	)

	var errs []error
	if res, err := c.collect(ctx, Trailing, tw, true); err != nil {
		errs = append(errs, err)
	} else {
		report.Trailing = &res
	}

	if mtdOK {
		if res, err := c.collect(ctx, MonthToDate, mtd, false); err != nil {
			errs = append(errs, err)
		} else {
			report.MonthToDate = &res
		}
	} else {
		var res model.WindowResult
		c.publish(ctx, MonthToDate, res)
		report.MonthToDate = &res
	}
	return report, errors.Join(errs...)
}

func (c *Controller) collect(ctx context.Context, name Window, w model.TimeWindow, includeProducts bool) (model.WindowResult, error) {
	res, err := c.agg.Aggregate(ctx, w, includeProducts)
	if err != nil {
		obs.FromContext(ctx).Error("window_failed",
			"window", string(name),
			"begin_time", w.BeginParam(),
			"end_time", w.EndParam(),
			"error", err,
		)
		if c.opts.Self != nil {
			c.opts.Self.WindowFailures.WithLabelValues(string(name)).Inc()
		}
		return model.WindowResult{}, &WindowError{Window: name, Err: err}
	}
	c.publish(ctx, name, res)
	return res, nil
}

func (c *Controller) publish(ctx context.Context, name Window, res model.WindowResult) {
	n := schema[name]
	avg := res.AveragePayment()
	c.sink.Set(n.count, nil, float64(res.PaymentCount))
	c.sink.Set(n.total, nil, float64(res.PaymentTotal))
	c.sink.Set(n.avg, nil, avg)
	c.sink.Set(n.refundCount, nil, float64(res.RefundCount))
	c.sink.Set(n.refundTotal, nil, float64(res.RefundTotal))

	if n.productCount != "" {
		c.publishProducts(n, res.Products)
	}
	if c.opts.Self != nil {
		c.opts.Self.WindowLastSuccess.WithLabelValues(string(name)).SetToCurrentTime()
	}

	cur := c.opts.Currency
	obs.FromContext(ctx).Info("metrics_updated",
		"window", string(name),
		"payments", res.PaymentCount,
		"total_value", res.PaymentTotal,
		"avg_value", avg,
		"refunds", res.RefundCount,
		"refund_value", res.RefundTotal,
		"products", len(res.Products),
		"unit", "minor",
		"currency", cur,
	)
}

// publishProducts sets the current product series and drops the ones that
// fell out of the window since the previous publication.
func (c *Controller) publishProducts(n metricNames, products model.ProductAggregate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[string]struct{}, len(products))
	for name, t := range products {
		labels := map[string]string{obs.ProductLabel: name}
		c.sink.Set(n.productCount, labels, t.Count)
		c.sink.Set(n.productValue, labels, float64(t.Value))
		next[name] = struct{}{}
	}
	for name := range c.products {
		if _, ok := next[name]; ok {
			continue
		}
		labels := map[string]string{obs.ProductLabel: name}
		c.sink.Delete(n.productCount, labels)
		c.sink.Delete(n.productValue, labels)
	}
	c.products = next
}
