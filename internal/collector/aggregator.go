// Package collector turns paginated Square activity into per-window
// aggregates and publishes them to the metrics sink.
package collector

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/square-exporter/internal/model"
	"github.com/fairyhunter13/square-exporter/internal/obs"
	"github.com/fairyhunter13/square-exporter/internal/square"
)

// PageFetcher lists one page of a resource inside a window.
type PageFetcher interface {
	FetchPage(ctx context.Context, kind model.ResourceKind, w model.TimeWindow, cursor string) (model.Page, error)
}

// OrderResolver returns an order by id, typically through a cache.
type OrderResolver interface {
	Resolve(ctx context.Context, orderID string) (model.Order, error)
}

// Aggregator sweeps every page of payments and refunds in a window.
type Aggregator struct {
	pages  PageFetcher
	orders OrderResolver
}

// NewAggregator constructs an Aggregator.
func NewAggregator(pages PageFetcher, orders OrderResolver) *Aggregator {
	return &Aggregator{pages: pages, orders: orders}
}

// Aggregate computes a fresh WindowResult for w. With includeProducts set,
// payments that reference an order contribute their line items to the
// product breakdown. Any fetch or lookup error aborts the call and no
// partial result is returned.
func (a *Aggregator) Aggregate(ctx context.Context, w model.TimeWindow, includeProducts bool) (model.WindowResult, error) {
	var res model.WindowResult
	if includeProducts {
		res.Products = model.ProductAggregate{}
	}
	log := obs.FromContext(ctx)

	err := a.sweep(ctx, model.Payments, w, func(p model.Page) error {
		for _, pay := range p.Payments {
			res.PaymentCount++
			res.PaymentTotal += pay.Amount
			if !includeProducts || pay.OrderID == "" {
				continue
			}
			order, err := a.orders.Resolve(ctx, pay.OrderID)
			if err != nil {
				return fmt.Errorf("resolve order %s: %w", pay.OrderID, err)
			}
			for _, li := range order.LineItems {
				res.Products.Add(li)
			}
		}
		return nil
	})
	if err != nil {
		return model.WindowResult{}, err
	}

	err = a.sweep(ctx, model.Refunds, w, func(p model.Page) error {
		for _, r := range p.Refunds {
			res.RefundCount++
			res.RefundTotal += r.Amount
		}
		return nil
	})
	if err != nil {
		return model.WindowResult{}, err
	}

	log.Debug("window_aggregated",
		"begin_time", w.BeginParam(),
		"end_time", w.EndParam(),
		"payments", res.PaymentCount,
		"refunds", res.RefundCount,
		"products", len(res.Products),
	)
	return res, nil
}

// sweep follows cursors until the remote side reports no further page.
func (a *Aggregator) sweep(ctx context.Context, kind model.ResourceKind, w model.TimeWindow, visit func(model.Page) error) error {
	cursor := ""
	for pages := 1; ; pages++ {
		page, err := a.pages.FetchPage(ctx, kind, w, cursor)
		if err != nil {
			return fmt.Errorf("%s page %d: %w", kind, pages, err)
		}
		if err := visit(page); err != nil {
			return err
		}
		if page.NextCursor == "" {
			return nil
		}
		if page.NextCursor == cursor {
			return &square.TransportError{
				Op:     fmt.Sprintf("list %s page %d", kind, pages),
				Detail: fmt.Sprintf("cursor %q did not advance", cursor),
			}
		}
		cursor = page.NextCursor
	}
}
