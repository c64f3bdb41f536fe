// Package jsonrate implements a kitty.RateSource for any HTTP endpoint
// returning JSON, the rate being located in the payload with a JSONPath
// expression.
//
// For instance the Frankfurter API can also be queried with:
//
//	URL:  "https://api.frankfurter.app/{date}?base={base}"
//	Path: "$.rates.{target}"
package jsonrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/kitty"
	"github.com/etnz/kitty/date"
	"github.com/shopspring/decimal"
)

// Source queries URL and extracts the rate at Path. Both can contain the
// {date}, {base} and {target} placeholders.
type Source struct {
	URL    string
	Path   string
	Client *http.Client // defaults to http.DefaultClient
}

var _ kitty.RateSource = (*Source)(nil)

func expand(template string, on date.Date, base, target string) string {
	return strings.NewReplacer("{date}", on.String(), "{base}", base, "{target}", target).Replace(template)
}

// Rate queries the endpoint. A 404 response or a path that matches nothing
// means the rate is unavailable.
func (s *Source) Rate(ctx context.Context, on date.Date, base, target string) (decimal.Decimal, error) {
	if base == target {
		return decimal.NewFromInt(1), nil
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	addr := expand(s.URL, on, base, target)
	path := expand(s.Path, on, base, target)
	pair := base + target

	var jobj any
	err := getJSON(ctx, client, addr, &jobj)
	if errors.Is(err, errNotFound) {
		return decimal.Zero, fmt.Errorf("%s on %s: %w", pair, on, kitty.ErrRateUnavailable)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("error in GET %q: %w", pair, err)
	}

	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		// jsonpath reports unknown keys as errors
		return decimal.Zero, fmt.Errorf("%s on %s: %q: %v: %w", pair, on, path, err, kitty.ErrRateUnavailable)
	}
	// because jsonpath is never clear about whether it returns a list of 1 answer, or a single answer:
	// by this call I keep the first one if any
	if jlist, ok := jval.([]any); ok {
		if len(jlist) == 0 {
			return decimal.Zero, fmt.Errorf("%s on %s: %q matched nothing: %w", pair, on, path, kitty.ErrRateUnavailable)
		}
		jval = jlist[0]
	}

	var rate decimal.Decimal
	switch v := jval.(type) {
	case json.Number:
		rate, err = decimal.NewFromString(v.String())
	case string:
		rate, err = decimal.NewFromString(v)
	case float64:
		rate = decimal.NewFromFloat(v)
	default:
		err = fmt.Errorf("not a number: %v", jval)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("error parsing %q: %q: %w", pair, path, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s on %s: rate %v is not positive: %w", pair, on, rate, kitty.ErrRateUnavailable)
	}
	return rate, nil
}

var errNotFound = errors.New("not found")

// getJSON GETs addr and decodes the JSON body into data, keeping numbers as
// json.Number so no precision is lost.
func getJSON(ctx context.Context, client *http.Client, addr string, data any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("cannot http GET %v%v: %v", resp.Request.URL.Host, resp.Request.URL.Path, resp.Status)
	}
	dec := json.NewDecoder(io.LimitReader(resp.Body, 1<<20))
	dec.UseNumber()
	return dec.Decode(data)
}
