// Package quotes is a client for the daily-price provider API. It
// serves two calls: full or delta OHLCV history and a spot quote.
package quotes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://quotes.dividendlab.io"
	defaultRange   = "5y"
)

// Client fetches price data for a single ticker per call.
type Client interface {
	History(ctx context.Context, req HistoryRequest) ([]Bar, error)
	Quote(ctx context.Context, ticker string) (*Quote, error)
}

// HistoryRequest asks for daily bars. A zero Start requests the full
// default range.
type HistoryRequest struct {
	Ticker string
	Start  time.Time
}

// Bar is one daily OHLCV record as the provider reports it.
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Quote is the current snapshot for a ticker.
type Quote struct {
	Ticker   string  `json:"ticker"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	AsOf     string  `json:"as_of"`
}

type historyResponse struct {
	Ticker string `json:"ticker"`
	Bars   []Bar  `json:"bars"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing request rate.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a provider client with a conservative default rate
// limit.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		limiter: rate.NewLimiter(5, 2),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) History(ctx context.Context, req HistoryRequest) ([]Bar, error) {
	if req.Ticker == "" {
		return nil, eris.New("quotes: ticker required")
	}

	q := url.Values{}
	q.Set("ticker", req.Ticker)
	q.Set("interval", "1d")
	if req.Start.IsZero() {
		q.Set("range", defaultRange)
	} else {
		q.Set("start", req.Start.UTC().Format("2006-01-02"))
	}

	var resp historyResponse
	if err := c.get(ctx, "/v1/history", q, &resp); err != nil {
		return nil, err
	}
	return resp.Bars, nil
}

func (c *httpClient) Quote(ctx context.Context, ticker string) (*Quote, error) {
	if ticker == "" {
		return nil, eris.New("quotes: ticker required")
	}

	q := url.Values{}
	q.Set("ticker", ticker)

	var quote Quote
	if err := c.get(ctx, "/v1/quote", q, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "quotes: rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "quotes: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "quotes: GET %s", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "quotes: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("quotes: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "quotes: unmarshal response")
	}
	return nil
}
