package collector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/fairyhunter13/square-exporter/internal/model"
	"github.com/fairyhunter13/square-exporter/internal/square"
)

type fetchCall struct {
	kind   model.ResourceKind
	window model.TimeWindow
	cursor string
}

// scriptedFetcher serves fixed pages per resource kind. Cursors are
// "<kind>-<index>"; the last page carries no cursor.
type scriptedFetcher struct {
	mu    sync.Mutex
	pages map[model.ResourceKind][]model.Page
	fail  func(kind model.ResourceKind, w model.TimeWindow, idx int) error
	calls []fetchCall
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{pages: map[model.ResourceKind][]model.Page{}}
}

func (f *scriptedFetcher) payments(pages ...[]int64) *scriptedFetcher {
	for _, amounts := range pages {
		var p model.Page
		for _, a := range amounts {
			p.Payments = append(p.Payments, model.PaymentRecord{Amount: a})
		}
		f.pages[model.Payments] = append(f.pages[model.Payments], p)
	}
	return f
}

func (f *scriptedFetcher) paymentRecords(pages ...[]model.PaymentRecord) *scriptedFetcher {
	for _, recs := range pages {
		f.pages[model.Payments] = append(f.pages[model.Payments], model.Page{Payments: recs})
	}
	return f
}

func (f *scriptedFetcher) refunds(pages ...[]int64) *scriptedFetcher {
	for _, amounts := range pages {
		var p model.Page
		for _, a := range amounts {
			p.Refunds = append(p.Refunds, model.RefundRecord{Amount: a})
		}
		f.pages[model.Refunds] = append(f.pages[model.Refunds], p)
	}
	return f
}

func (f *scriptedFetcher) FetchPage(_ context.Context, kind model.ResourceKind, w model.TimeWindow, cursor string) (model.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{kind: kind, window: w, cursor: cursor})

	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(cursor, string(kind)+"-"))
		if err != nil {
			return model.Page{}, fmt.Errorf("bad cursor %q", cursor)
		}
		idx = n
	}
	if f.fail != nil {
		if err := f.fail(kind, w, idx); err != nil {
			return model.Page{}, err
		}
	}
	pages := f.pages[kind]
	if len(pages) == 0 {
		return model.Page{}, nil
	}
	p := pages[idx]
	if idx+1 < len(pages) {
		p.NextCursor = fmt.Sprintf("%s-%d", kind, idx+1)
	}
	return p, nil
}

func (f *scriptedFetcher) callCount(kind model.ResourceKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

type mapResolver struct {
	mu     sync.Mutex
	orders map[string]model.Order
	fail   map[string]error
	calls  int
}

func (r *mapResolver) Resolve(_ context.Context, id string) (model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err := r.fail[id]; err != nil {
		return model.Order{}, err
	}
	o, ok := r.orders[id]
	if !ok {
		return model.Order{}, &square.TransportError{Op: "retrieve order " + id, StatusCode: 404}
	}
	return o, nil
}

type series struct {
	name    string
	product string
}

// recordingSink is an in-memory obs.Sink.
type recordingSink struct {
	mu     sync.Mutex
	values map[series]float64
	sets   int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{values: map[series]float64{}}
}

func (s *recordingSink) Set(name string, labels map[string]string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[series{name, labels["product"]}] = value
	s.sets++
}

func (s *recordingSink) Delete(name string, labels map[string]string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := series{name, labels["product"]}
	_, ok := s.values[k]
	delete(s.values, k)
	return ok
}

func (s *recordingSink) get(name string) (float64, bool) {
	return s.getProduct(name, "")
}

func (s *recordingSink) getProduct(name, product string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[series{name, product}]
	return v, ok
}

var errBoom = errors.New("connection reset")
