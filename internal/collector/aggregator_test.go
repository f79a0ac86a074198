package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/square-exporter/internal/model"
	"github.com/fairyhunter13/square-exporter/internal/square"
)

func dayWindow(t *testing.T) model.TimeWindow {
	t.Helper()
	end := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	w, err := model.NewTimeWindow(end.Add(-24*time.Hour), end)
	require.NoError(t, err)
	return w
}

func TestAggregateTotalsAndAverage(t *testing.T) {
	f := newScriptedFetcher().payments([]int64{500, 1500}).refunds([]int64{200})
	a := NewAggregator(f, &mapResolver{})

	res, err := a.Aggregate(context.Background(), dayWindow(t), true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.PaymentCount)
	assert.Equal(t, int64(2000), res.PaymentTotal)
	assert.Equal(t, 1000.0, res.AveragePayment())
	assert.Equal(t, int64(1), res.RefundCount)
	assert.Equal(t, int64(200), res.RefundTotal)
	assert.Empty(t, res.Products)
}

func TestAggregateEmptyWindow(t *testing.T) {
	f := newScriptedFetcher()
	a := NewAggregator(f, &mapResolver{})

	res, err := a.Aggregate(context.Background(), dayWindow(t), true)
	require.NoError(t, err)
	assert.Zero(t, res.PaymentCount)
	assert.Zero(t, res.PaymentTotal)
	assert.Zero(t, res.RefundCount)
	assert.Zero(t, res.RefundTotal)
	assert.Zero(t, res.AveragePayment())
	assert.Empty(t, res.Products)
	assert.Equal(t, 1, f.callCount(model.Payments))
	assert.Equal(t, 1, f.callCount(model.Refunds))
}

func TestAggregateVisitsEveryPageOnce(t *testing.T) {
	f := newScriptedFetcher().
		payments([]int64{1, 2, 3}, []int64{4, 5}, []int64{}, []int64{6}).
		refunds([]int64{7}, []int64{8, 9})
	a := NewAggregator(f, &mapResolver{})

	res, err := a.Aggregate(context.Background(), dayWindow(t), false)
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.PaymentCount)
	assert.Equal(t, int64(21), res.PaymentTotal)
	assert.Equal(t, int64(3), res.RefundCount)
	assert.Equal(t, int64(24), res.RefundTotal)
	assert.Equal(t, 4, f.callCount(model.Payments))
	assert.Equal(t, 2, f.callCount(model.Refunds))

	var cursors []string
	for _, c := range f.calls {
		if c.kind == model.Payments {
			cursors = append(cursors, c.cursor)
		}
	}
	assert.Equal(t, []string{"", "payments-1", "payments-2", "payments-3"}, cursors)
}

func TestAggregateSumProperty(t *testing.T) {
	cases := [][]int64{
		{},
		{0},
		{1},
		{0, 0, 0},
		{99, 1, 250, 7},
		{1 << 40, 1 << 40},
	}
	for _, amounts := range cases {
		var sum int64
		for _, a := range amounts {
			sum += a
		}
		f := newScriptedFetcher().payments(amounts)
		res, err := NewAggregator(f, &mapResolver{}).Aggregate(context.Background(), dayWindow(t), false)
		require.NoError(t, err)
		assert.Equal(t, sum, res.PaymentTotal)
		assert.Equal(t, int64(len(amounts)), res.PaymentCount)
		if len(amounts) == 0 {
			assert.Zero(t, res.AveragePayment())
		} else {
			assert.InDelta(t, float64(sum)/float64(len(amounts)), res.AveragePayment(), 1e-6)
		}
	}
}

func TestAggregateIdempotent(t *testing.T) {
	f := newScriptedFetcher().
		paymentRecords([]model.PaymentRecord{{Amount: 600, OrderID: "o1"}}, []model.PaymentRecord{{Amount: 300, OrderID: "o2"}}).
		refunds([]int64{50})
	r := &mapResolver{orders: map[string]model.Order{
		"o1": {LineItems: []model.LineItem{{Name: "Coffee", Quantity: decimal.NewFromInt(2), UnitPrice: 300}}},
		"o2": {LineItems: []model.LineItem{{Name: "Tea", Quantity: decimal.NewFromInt(1), UnitPrice: 300}}},
	}}
	a := NewAggregator(f, r)

	first, err := a.Aggregate(context.Background(), dayWindow(t), true)
	require.NoError(t, err)
	second, err := a.Aggregate(context.Background(), dayWindow(t), true)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAggregateProductBreakdown(t *testing.T) {
	f := newScriptedFetcher().paymentRecords([]model.PaymentRecord{
		{Amount: 600, OrderID: "o1"},
		{Amount: 300, OrderID: "o2"},
		{Amount: 100},
	})
	r := &mapResolver{orders: map[string]model.Order{
		"o1": {LineItems: []model.LineItem{{Name: "Coffee", Quantity: decimal.NewFromInt(2), UnitPrice: 300}}},
		"o2": {LineItems: []model.LineItem{{Name: "Coffee", Quantity: decimal.NewFromInt(1), UnitPrice: 300}}},
	}}

	res, err := NewAggregator(f, r).Aggregate(context.Background(), dayWindow(t), true)
	require.NoError(t, err)
	assert.Equal(t, model.ProductTotals{Count: 3, Value: 900}, res.Products["Coffee"])
	assert.Len(t, res.Products, 1)
	assert.Equal(t, 2, r.calls)
	assert.Equal(t, int64(3), res.PaymentCount)
}

func TestAggregateWithoutBreakdownSkipsOrders(t *testing.T) {
	f := newScriptedFetcher().paymentRecords([]model.PaymentRecord{{Amount: 600, OrderID: "o1"}})
	r := &mapResolver{}

	res, err := NewAggregator(f, r).Aggregate(context.Background(), dayWindow(t), false)
	require.NoError(t, err)
	assert.Nil(t, res.Products)
	assert.Zero(t, r.calls)
}

func TestAggregateOrderLookupFailureAborts(t *testing.T) {
	f := newScriptedFetcher().
		paymentRecords([]model.PaymentRecord{{Amount: 600, OrderID: "o1"}, {Amount: 300, OrderID: "gone"}}).
		refunds([]int64{10})
	r := &mapResolver{orders: map[string]model.Order{
		"o1": {LineItems: []model.LineItem{{Name: "Coffee", Quantity: decimal.NewFromInt(2), UnitPrice: 300}}},
	}}

	res, err := NewAggregator(f, r).Aggregate(context.Background(), dayWindow(t), true)
	require.Error(t, err)
	var te *square.TransportError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, model.WindowResult{}, res)
	assert.Zero(t, f.callCount(model.Refunds))
}

func TestAggregateRefundPageFailure(t *testing.T) {
	f := newScriptedFetcher().payments([]int64{500}).refunds([]int64{1}, []int64{2})
	f.fail = func(kind model.ResourceKind, _ model.TimeWindow, idx int) error {
		if kind == model.Refunds && idx == 1 {
			return &square.TransportError{Op: "list refunds", Err: errBoom}
		}
		return nil
	}

	_, err := NewAggregator(f, &mapResolver{}).Aggregate(context.Background(), dayWindow(t), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "refunds page 2")
}

func TestAggregateStuckCursor(t *testing.T) {
	stuck := &stuckFetcher{}
	_, err := NewAggregator(stuck, &mapResolver{}).Aggregate(context.Background(), dayWindow(t), false)
	var te *square.TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, te.Detail, "did not advance")
	assert.Equal(t, 2, stuck.calls)
}

type stuckFetcher struct{ calls int }

func (s *stuckFetcher) FetchPage(context.Context, model.ResourceKind, model.TimeWindow, string) (model.Page, error) {
	s.calls++
	return model.Page{Payments: []model.PaymentRecord{{Amount: 1}}, NextCursor: "same"}, nil
}
