// Package model defines domain types used by the exporter.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout renders window bounds in UTC with second precision.
const TimestampLayout = "2006-01-02T15:04:05Z"

// TimeWindow is a half-open [Start, End) interval.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow builds a window truncated to whole seconds in UTC.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	w := TimeWindow{
		Start: start.UTC().Truncate(time.Second),
		End:   end.UTC().Truncate(time.Second),
	}
	if !w.Start.Before(w.End) {
		return TimeWindow{}, fmt.Errorf("invalid window: start %s is not before end %s", w.BeginParam(), w.EndParam())
	}
	return w, nil
}

// BeginParam formats Start for the remote API.
func (w TimeWindow) BeginParam() string { return w.Start.UTC().Format(TimestampLayout) }

// EndParam formats End for the remote API.
func (w TimeWindow) EndParam() string { return w.End.UTC().Format(TimestampLayout) }

// ResourceKind selects which paginated resource to list.
type ResourceKind string

const (
	Payments ResourceKind = "payments"
	Refunds  ResourceKind = "refunds"
)

// PaymentRecord is a single payment in minor currency units.
type PaymentRecord struct {
	Amount  int64
	OrderID string
}

// RefundRecord is a single refund in minor currency units.
type RefundRecord struct {
	Amount int64
}

// Page is one page of a paginated listing. Only the slice matching the
// requested ResourceKind is populated. An empty NextCursor ends the sweep.
type Page struct {
	Payments   []PaymentRecord
	Refunds    []RefundRecord
	NextCursor string
}

// LineItem is one line of an order. Quantity keeps the exact decimal the
// API reports; it may be fractional for items sold by weight or volume.
type LineItem struct {
	Name      string
	Quantity  decimal.Decimal
	UnitPrice int64
}

// Value is Quantity times UnitPrice, rounded to the nearest minor unit.
func (li LineItem) Value() int64 {
	return li.Quantity.Mul(decimal.NewFromInt(li.UnitPrice)).Round(0).IntPart()
}

// Order holds the line items of a remote order.
type Order struct {
	ID        string
	LineItems []LineItem
}

// ProductTotals accumulates sold quantity and value for one product name.
type ProductTotals struct {
	Count float64 `yaml:"count" json:"count"`
	Value int64 `yaml:"value" json:"value"`
}

// ProductAggregate maps product names, as returned by the API, to totals.
type ProductAggregate map[string]ProductTotals

// Add accumulates a line item into the aggregate.
func (p ProductAggregate) Add(li LineItem) {
	t := p[li.Name]
	t.Count = decimal.NewFromFloat(t.Count).Add(li.Quantity).InexactFloat64()
	t.Value += li.Value()
	p[li.Name] = t
}

// WindowResult is the unit published per window.
type WindowResult struct {
	PaymentCount int64            `yaml:"payment_count" json:"payment_count"`
	PaymentTotal int64            `yaml:"payment_total" json:"payment_total"`
	RefundCount  int64            `yaml:"refund_count" json:"refund_count"`
	RefundTotal  int64            `yaml:"refund_total" json:"refund_total"`
	Products     ProductAggregate `yaml:"products,omitempty" json:"products,omitempty"`
}

// AveragePayment returns PaymentTotal/PaymentCount, or 0 when there are no
// payments.
func (r WindowResult) AveragePayment() float64 {
	return Average(r.PaymentTotal, r.PaymentCount)
}

// Average divides total by count exactly and returns 0 for an empty count.
func Average(total, count int64) float64 {
	if count == 0 {
		return 0
	}
	return decimal.NewFromInt(total).Div(decimal.NewFromInt(count)).InexactFloat64()
}
