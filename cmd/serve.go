package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/etnz/kitty/api"
	"github.com/google/subcommands"
)

type serveCmd struct {
	addr string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the settlement HTTP API" }
func (*serveCmd) Usage() string {
	return `kt serve [-addr <address>]

  Serves the JSON API:

    POST /v1/settlement                     balances and transfers of a group
    GET  /v1/rates/{date}/{base}/{target}   a single exchange rate

  The server stops gracefully on interrupt.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", ":8080", "Address to listen on")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	source, closer, err := OpenRates(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening rate source: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closer()

	srv := &http.Server{
		Addr:              c.addr,
		Handler:           api.NewRouter(source),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("serving on %s", c.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Error serving: %v\n", err)
			return subcommands.ExitFailure
		}
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			fmt.Fprintf(os.Stderr, "Error shutting down: %v\n", err)
			return subcommands.ExitFailure
		}
		log.Println("server stopped")
	}
	return subcommands.ExitSuccess
}
