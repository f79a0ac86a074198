// Package square is a narrow client for the Square REST API: the paginated
// payment and refund listings, order retrieval and the location lookup.
package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/fairyhunter13/square-exporter/internal/model"
	"github.com/fairyhunter13/square-exporter/internal/obs"
)

// PageSize is the fixed page size requested from list endpoints.
const PageSize = 100

const maxBodyBytes = 16 << 20

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	LocationID string
	APIVersion string
	Timeout    time.Duration
	RPS        float64
	Burst      int
	HTTPClient *http.Client
	// OnResponse is called once per request with the resource name and the
	// status code, or "error" when no response was received.
	OnResponse func(resource, code string)
}

// Client issues bounded, rate limited requests against the Square API.
type Client struct {
	opts    Options
	hc      *http.Client
	limiter *rate.Limiter
}

// New constructs a Client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return &Client{opts: opts, hc: hc, limiter: lim}
}

type money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type listPaymentsResponse struct {
	Payments []struct {
		ID          string `json:"id"`
		AmountMoney money  `json:"amount_money"`
		OrderID     string `json:"order_id"`
	} `json:"payments"`
	Cursor string `json:"cursor"`
}

type listRefundsResponse struct {
	Refunds []struct {
		ID          string `json:"id"`
		AmountMoney money  `json:"amount_money"`
	} `json:"refunds"`
	Cursor string `json:"cursor"`
}

type retrieveOrderResponse struct {
	Order struct {
		ID        string `json:"id"`
		LineItems []struct {
			Name           string `json:"name"`
			Quantity       string `json:"quantity"`
			BasePriceMoney money  `json:"base_price_money"`
		} `json:"line_items"`
	} `json:"order"`
}

type retrieveLocationResponse struct {
	Location struct {
		ID       string `json:"id"`
		Currency string `json:"currency"`
	} `json:"location"`
}

// FetchPage lists one page of payments or refunds inside w, sorted
// ascending. An empty cursor requests the first page.
func (c *Client) FetchPage(ctx context.Context, kind model.ResourceKind, w model.TimeWindow, cursor string) (model.Page, error) {
	q := url.Values{}
	q.Set("begin_time", w.BeginParam())
	q.Set("end_time", w.EndParam())
	q.Set("location_id", c.opts.LocationID)
	q.Set("sort_order", "ASC")
	q.Set("limit", strconv.Itoa(PageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	op := "list " + string(kind)

	switch kind {
	case model.Payments:
		var resp listPaymentsResponse
		if err := c.get(ctx, op, string(kind), "/payments", q, &resp); err != nil {
			return model.Page{}, err
		}
		page := model.Page{NextCursor: resp.Cursor, Payments: make([]model.PaymentRecord, 0, len(resp.Payments))}
		for _, p := range resp.Payments {
			page.Payments = append(page.Payments, model.PaymentRecord{Amount: p.AmountMoney.Amount, OrderID: p.OrderID})
		}
		return page, nil
	case model.Refunds:
		var resp listRefundsResponse
		if err := c.get(ctx, op, string(kind), "/refunds", q, &resp); err != nil {
			return model.Page{}, err
		}
		page := model.Page{NextCursor: resp.Cursor, Refunds: make([]model.RefundRecord, 0, len(resp.Refunds))}
		for _, r := range resp.Refunds {
			page.Refunds = append(page.Refunds, model.RefundRecord{Amount: r.AmountMoney.Amount})
		}
		return page, nil
	default:
		return model.Page{}, fmt.Errorf("unknown resource kind %q", kind)
	}
}

// RetrieveOrder fetches the line items of one order.
func (c *Client) RetrieveOrder(ctx context.Context, orderID string) (model.Order, error) {
	var resp retrieveOrderResponse
	op := "retrieve order " + orderID
	if err := c.get(ctx, op, "orders", "/orders/"+url.PathEscape(orderID), nil, &resp); err != nil {
		return model.Order{}, err
	}
	order := model.Order{ID: orderID, LineItems: make([]model.LineItem, 0, len(resp.Order.LineItems))}
	for _, li := range resp.Order.LineItems {
		qty, err := parseQuantity(li.Quantity)
		if err != nil {
			return model.Order{}, &TransportError{Op: op, Err: err}
		}
		order.LineItems = append(order.LineItems, model.LineItem{
			Name:      li.Name,
			Quantity:  qty,
			UnitPrice: li.BasePriceMoney.Amount,
		})
	}
	return order, nil
}

// LocationCurrency returns the currency code of the configured location.
// An empty string with a nil error means the location carries no currency.
func (c *Client) LocationCurrency(ctx context.Context) (string, error) {
	var resp retrieveLocationResponse
	if err := c.get(ctx, "retrieve location", "locations", "/locations/"+url.PathEscape(c.opts.LocationID), nil, &resp); err != nil {
		return "", err
	}
	return resp.Location.Currency, nil
}

// parseQuantity reads Square's decimal-string quantity without rounding.
func parseQuantity(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, errors.New("line item quantity missing")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("line item quantity %q: %w", s, err)
	}
	return d, nil
}

func (c *Client) get(ctx context.Context, op, resource, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Op: op, Err: err}
	}
	u := c.opts.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.opts.APIVersion != "" {
		req.Header.Set("Square-Version", c.opts.APIVersion)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.observe(resource, "error")
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.observe(resource, strconv.Itoa(resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	obs.Logger.Debug("square_request",
		"op", op,
		"status", resp.StatusCode,
		"bytes", len(body),
		"latency_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		te := &TransportError{Op: op, StatusCode: resp.StatusCode}
		var env errorEnvelope
		if json.Unmarshal(body, &env) == nil && len(env.Errors) > 0 {
			te.Detail = env.String()
		}
		return te
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) observe(resource, code string) {
	if c.opts.OnResponse != nil {
		c.opts.OnResponse(resource, code)
	}
}
