package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/square-exporter/internal/model"
)

type countingFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newCountingFetcher() *countingFetcher {
	return &countingFetcher{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *countingFetcher) RetrieveOrder(_ context.Context, id string) (model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err := f.fail[id]; err != nil {
		return model.Order{}, err
	}
	return model.Order{ID: id, LineItems: []model.LineItem{{Name: "item-" + id, Quantity: decimal.NewFromInt(1), UnitPrice: 100}}}, nil
}

func (f *countingFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func TestResolveSameIDFetchesOnce(t *testing.T) {
	f := newCountingFetcher()
	c := New(f, 10, 0)
	ctx := context.Background()

	o1, err := c.Resolve(ctx, "o1")
	require.NoError(t, err)
	o2, err := c.Resolve(ctx, "o1")
	require.NoError(t, err)

	assert.Equal(t, o1, o2)
	assert.Equal(t, 1, f.calls["o1"])
	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestResolveDistinctIDsFetchEach(t *testing.T) {
	f := newCountingFetcher()
	c := New(f, 100, 0)
	for i := 0; i < 25; i++ {
		_, err := c.Resolve(context.Background(), fmt.Sprintf("o%d", i))
		require.NoError(t, err)
	}
	for i := 0; i < 25; i++ {
		_, err := c.Resolve(context.Background(), fmt.Sprintf("o%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 25, f.total())
	assert.Equal(t, 25, c.Len())
}

func TestResolveFailureNotCached(t *testing.T) {
	f := newCountingFetcher()
	f.fail["bad"] = errors.New("boom")
	c := New(f, 10, 0)

	_, err := c.Resolve(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())

	f.mu.Lock()
	delete(f.fail, "bad")
	f.mu.Unlock()

	o, err := c.Resolve(context.Background(), "bad")
	require.NoError(t, err)
	assert.Equal(t, "bad", o.ID)
	assert.Equal(t, 2, f.calls["bad"])
}

func TestResolveEvictsLeastRecentlyUsed(t *testing.T) {
	f := newCountingFetcher()
	c := New(f, 2, 0)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "a", "c", "a", "b"} {
		_, err := c.Resolve(ctx, id)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.calls["a"])
	assert.Equal(t, 2, f.calls["b"])
	assert.Equal(t, 1, f.calls["c"])
	assert.Equal(t, 2, c.Len())
}

func TestResolveTTLExpires(t *testing.T) {
	f := newCountingFetcher()
	c := New(f, 10, 20*time.Millisecond)
	_, err := c.Resolve(context.Background(), "o1")
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = c.Resolve(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls["o1"])
}

func TestResolveObservesLookups(t *testing.T) {
	f := newCountingFetcher()
	c := New(f, 10, 0)
	var seen []string
	c.OnLookup = func(r string) { seen = append(seen, r) }
	_, _ = c.Resolve(context.Background(), "x")
	_, _ = c.Resolve(context.Background(), "x")
	assert.Equal(t, []string{"miss", "hit"}, seen)
}
