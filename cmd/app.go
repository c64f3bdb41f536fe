// Package cmd implements the kt command line application that settles the
// shared expenses of a group.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/kitty"
	"github.com/etnz/kitty/frankfurter"
	"github.com/etnz/kitty/jsonrate"
	"github.com/etnz/kitty/rediscache"
	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

// Commands lists every kt subcommand.
var Commands = []subcommands.Command{
	&balancesCmd{},
	&settleCmd{},
	&rateCmd{},
	&serveCmd{},
	&topicCmd{},
}

// Environment variables used as fallbacks when a flag is not set.
const (
	envGroupFile = "KITTY_GROUP_FILE"
	envCurrency  = "KITTY_CURRENCY"
	envRatesURL  = "KITTY_RATES_URL"
	envRatesPath = "KITTY_RATES_PATH"
	envRedisAddr = "KITTY_REDIS_ADDR"
	envHTTPCache = "KITTY_HTTP_CACHE"
	envRateTTL   = "KITTY_RATE_TTL"
	envStaleness = "KITTY_RATE_STALENESS"
)

const (
	defaultGroupFile = "group.jsonl"
	defaultCurrency  = "EUR"
	defaultRateTTL   = 24 * time.Hour
)

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	ratesURL  = flag.String("rates-url", "", "Base URL of the exchange rate provider. Takes precedence over "+envRatesURL+". Defaults to "+frankfurter.DefaultBaseURL)
	ratesPath = flag.String("rates-path", "", "JSONPath extracting the rate from a custom provider response, with {date}, {base} and {target} placeholders. Takes precedence over "+envRatesPath+". When set, -rates-url is a URL template with the same placeholders.")
	redisAddr = flag.String("redis-addr", "", "Address of a redis server caching exchange rates. Takes precedence over "+envRedisAddr+". Rates are cached in memory otherwise.")
	httpCache = flag.String("http-cache", "", "Directory caching rate provider responses for the day. Takes precedence over "+envHTTPCache+".")
	rateTTL   = flag.String("rate-ttl", "", "How long a cached rate is kept, e.g. 24h. Takes precedence over "+envRateTTL+". 0 keeps rates forever.")
	staleness = flag.String("rate-staleness", "", "Days a Frankfurter rate may be older than the expense, e.g. 4 for weekends. Takes precedence over "+envStaleness+". Defaults to 0, the exact day only.")
	raw       = flag.Bool("raw", false, "Print raw markdown instead of rendering it for the terminal")
)

// LoadEnv reads a .env file in the working directory, if any. Variables
// already set in the environment are not overridden.
func LoadEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning, cannot load .env: %v", err)
	}
}

// setting returns value if not empty, the env variable if set, def otherwise.
func setting(value, env, def string) string {
	if value != "" {
		return value
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

// cacheTTL returns the configured rate cache ttl.
func cacheTTL() (time.Duration, error) {
	v := setting(*rateTTL, envRateTTL, "")
	if v == "" {
		return defaultRateTTL, nil
	}
	ttl, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid rate ttl %q: %w", v, err)
	}
	return ttl, nil
}

// maxStaleness returns the configured Frankfurter staleness window in days.
func maxStaleness() (int, error) {
	v := setting(*staleness, envStaleness, "0")
	days, err := strconv.Atoi(v)
	if err != nil || days < 0 {
		return 0, fmt.Errorf("invalid rate staleness %q: want a number of days", v)
	}
	return days, nil
}

// provider returns the configured rate provider, without caching.
func provider() (kitty.RateSource, error) {
	addr := setting(*ratesURL, envRatesURL, "")
	if path := setting(*ratesPath, envRatesPath, ""); path != "" {
		return &jsonrate.Source{URL: addr, Path: path}, nil
	}

	days, err := maxStaleness()
	if err != nil {
		return nil, err
	}
	c := frankfurter.New()
	c.MaxStaleness = days
	if addr != "" {
		c.BaseURL = addr
	}
	if dir := setting(*httpCache, envHTTPCache, ""); dir != "" {
		c.HTTP = &http.Client{Transport: frankfurter.NewDailyCache(dir, http.DefaultTransport)}
	}
	return c, nil
}

// OpenRates returns the configured rate source wrapped in its cache. The
// returned function releases the cache.
func OpenRates(ctx context.Context) (kitty.RateSource, func(), error) {
	ttl, err := cacheTTL()
	if err != nil {
		return nil, nil, err
	}
	p, err := provider()
	if err != nil {
		return nil, nil, err
	}
	src := &kitty.CachedSource{Source: p, TTL: ttl}

	addr := setting(*redisAddr, envRedisAddr, "")
	if addr == "" {
		src.Cache = kitty.NewMemoryCache()
		return src, func() {}, nil
	}
	rc, err := rediscache.Dial(ctx, addr)
	if err != nil {
		return nil, nil, err
	}
	src.Cache = rc
	return src, func() {
		if err := rc.Close(); err != nil {
			log.Printf("warning, closing redis: %v", err)
		}
	}, nil
}

// DecodeGroup reads the group file, or the configured default one if file is
// empty.
func DecodeGroup(file string) (*kitty.Group, error) {
	file = setting(file, envGroupFile, defaultGroupFile)
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := kitty.DecodeGroup(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", file, err)
	}
	return g, nil
}

// stdout is where commands print their result.
var stdout io.Writer = os.Stdout

// printMarkdown prints md rendered for the terminal, or as is if -raw is set
// or rendering fails.
func printMarkdown(md string) {
	if *raw {
		fmt.Fprint(stdout, md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		fmt.Fprint(stdout, md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Fprint(stdout, md)
		return
	}
	fmt.Fprint(stdout, out)
}
