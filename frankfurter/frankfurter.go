// Package frankfurter looks up historical exchange rates published by the
// European Central Bank through the Frankfurter API (https://frankfurter.dev).
package frankfurter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/etnz/kitty"
	"github.com/etnz/kitty/date"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the public Frankfurter endpoint.
const DefaultBaseURL = "https://api.frankfurter.app"

// WeekendStaleness is a MaxStaleness accepting the last working day rate for
// weekends and most holidays, on which the ECB does not publish.
const WeekendStaleness = 4

// Client is a kitty.RateSource backed by the Frankfurter API.
type Client struct {
	BaseURL      string
	HTTP         *http.Client
	MaxStaleness int              // days a published rate may be older than requested, 0 is exact
	Today        func() date.Date // defaults to date.Today
}

// New returns a client for the public endpoint using http.DefaultClient. It
// only accepts rates published for the exact requested day.
func New() *Client {
	return &Client{BaseURL: DefaultBaseURL, HTTP: http.DefaultClient}
}

var _ kitty.RateSource = (*Client)(nil)

// response is the payload of GET /{date}?base=...&symbols=...
//
//	{"amount":1.0,"base":"USD","date":"2025-07-01","rates":{"EUR":0.8491}}
type response struct {
	Amount decimal.Decimal            `json:"amount"`
	Base   string                     `json:"base"`
	Date   date.Date                  `json:"date"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

// Rate returns the price of one base in target on day on.
//
// The rate is unavailable when on is in the future, when Frankfurter knows
// nothing about the currency or day, or when the closest published rate is
// more than MaxStaleness days older than on.
func (c *Client) Rate(ctx context.Context, on date.Date, base, target string) (decimal.Decimal, error) {
	if base == target {
		return decimal.NewFromInt(1), nil
	}
	today := date.Today
	if c.Today != nil {
		today = c.Today
	}
	if on.After(today()) {
		return decimal.Zero, fmt.Errorf("%s%s on %s is in the future: %w", base, target, on, kitty.ErrRateUnavailable)
	}

	addr := fmt.Sprintf("%s/%s?base=%s&symbols=%s", c.BaseURL, on, url.QueryEscape(base), url.QueryEscape(target))
	var resp response
	if err := getJSON(ctx, c.HTTP, addr, &resp); err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.code == http.StatusNotFound || se.code == http.StatusUnprocessableEntity) {
			return decimal.Zero, fmt.Errorf("%s%s on %s: %v: %w", base, target, on, err, kitty.ErrRateUnavailable)
		}
		return decimal.Zero, err
	}

	rate, ok := resp.Rates[target]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s%s on %s: no rate for %s: %w", base, target, on, target, kitty.ErrRateUnavailable)
	}
	if resp.Date.IsZero() || resp.Date.After(on) || on.DaysSince(resp.Date) > c.MaxStaleness {
		// Frankfurter answers with the closest available day, typically for future dates.
		return decimal.Zero, fmt.Errorf("%s%s on %s: closest rate is from %s: %w", base, target, on, resp.Date, kitty.ErrRateUnavailable)
	}
	if !resp.Amount.IsZero() && !resp.Amount.Equal(decimal.NewFromInt(1)) {
		rate = rate.Div(resp.Amount)
	}
	return rate, nil
}
