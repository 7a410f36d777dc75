// Package quotes prices open trades from a REST price feed.
package quotes

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trading-journal/internal/config"
	"trading-journal/internal/models"
)

const maxRetries = 3

// PriceSource returns the latest price of each requested symbol.
type PriceSource interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// Client is a rate limited REST client for the quote service.
type Client struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	backoff time.Duration
}

var _ PriceSource = (*Client)(nil)

// NewClient creates a quote client from configuration.
func NewClient(cfg config.Quotes, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.ApiKey != "" {
		client.SetHeader("X-API-KEY", cfg.ApiKey)
	}

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:  client,
		logger:  logger.Named("quotes"),
		limiter: limiter,
		backoff: time.Second,
	}
}

// TickerPrice is one entry of the /ticker/price response.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetPrices fetches the latest price for symbols in one request.
func (c *Client) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	var prices []TickerPrice

	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbols", strings.Join(symbols, ",")).
		SetResult(&prices)

	if _, err := c.doRequest(ctx, http.MethodGet, "/ticker/price", req); err != nil {
		return nil, fmt.Errorf("failed to get ticker prices: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(prices))
	for _, p := range prices {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q for %s: %w", p.Price, p.Symbol, err)
		}
		out[strings.ToUpper(p.Symbol)] = price
	}
	return out, nil
}

// doRequest executes req with rate limiting, retrying throttled responses,
// server errors and transport failures with exponential backoff.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
		} else if ctx.Err() == nil {
			shouldRetry = true
		}

		if !shouldRetry {
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		if retryAfter == 0 {
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.backoff
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err == nil {
		err = fmt.Errorf("status %s", resp.Status())
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// Marker values open trades at the latest quotes using the journal's profit
// convention.
type Marker struct {
	source PriceSource
}

// NewMarker creates a Marker over source.
func NewMarker(source PriceSource) *Marker {
	return &Marker{source: source}
}

// MarkToMarket returns the floating profit of open. Every symbol must be quoted.
func (m *Marker) MarkToMarket(ctx context.Context, open []models.Trade) (float64, error) {
	if len(open) == 0 {
		return 0, nil
	}

	seen := make(map[string]bool)
	var symbols []string
	for _, t := range open {
		if !seen[t.Symbol] {
			seen[t.Symbol] = true
			symbols = append(symbols, t.Symbol)
		}
	}

	prices, err := m.source.GetPrices(ctx, symbols)
	if err != nil {
		return 0, err
	}

	floating := decimal.Zero
	for _, t := range open {
		price, ok := prices[t.Symbol]
		if !ok {
			return 0, fmt.Errorf("no quote for %s", t.Symbol)
		}
		floating = floating.Add(decimal.NewFromFloat(t.ProfitAt(price.InexactFloat64())))
	}
	return floating.InexactFloat64(), nil
}
