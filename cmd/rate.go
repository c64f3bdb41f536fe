package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/kitty"
	"github.com/etnz/kitty/date"
	"github.com/google/subcommands"
)

type rateCmd struct {
	date string
}

func (*rateCmd) Name() string     { return "rate" }
func (*rateCmd) Synopsis() string { return "display the exchange rate between two currencies" }
func (*rateCmd) Usage() string {
	return `kt rate [-d <date>] <base> <target>

  Displays the price of one unit of base in target on that day, as used to
  convert expenses.
`
}

func (c *rateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Day of the rate (YYYY-MM-DD). Defaults to today.")
}

func (c *rateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Error: a base and a target currency are required.")
		return subcommands.ExitUsageError
	}
	base, target := strings.ToUpper(f.Arg(0)), strings.ToUpper(f.Arg(1))
	for _, cur := range []string{base, target} {
		if err := kitty.ValidateCurrency(cur); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	on := date.Today()
	if c.date != "" {
		var err error
		if on, err = date.Parse(c.date); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	source, closer, err := OpenRates(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening rate source: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closer()

	rate, err := source.Rate(ctx, on, base, target)
	if errors.Is(err, kitty.ErrRateUnavailable) {
		fmt.Fprintf(os.Stderr, "No %s rate for %s on %s.\n", base, target, on)
		return subcommands.ExitFailure
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching rate: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "%s 1 %s = %s %s\n", on, base, rate, target)
	return subcommands.ExitSuccess
}
