package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/kitty"
	"github.com/etnz/kitty/renderer"
	"github.com/google/subcommands"
)

// prefetchLimit bounds concurrent rate lookups.
const prefetchLimit = 8

// groupFlags are the flags shared by commands reading the group file.
type groupFlags struct {
	currency  string
	groupFile string
}

func (g *groupFlags) setFlags(f *flag.FlagSet) {
	f.StringVar(&g.currency, "c", "", "Reference currency of the balances. Defaults to "+envCurrency+" or "+defaultCurrency+".")
	f.StringVar(&g.groupFile, "f", "", "Group file (JSONL format). Defaults to "+envGroupFile+" or "+defaultGroupFile+".")
}

// settle decodes the group and computes its balances and, unless skipTransfers
// is set, the transfers settling them.
func (g *groupFlags) settle(ctx context.Context, skipTransfers bool) (*renderer.Settlement, subcommands.ExitStatus) {
	currency := setting(g.currency, envCurrency, defaultCurrency)
	if err := kitty.ValidateCurrency(currency); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, subcommands.ExitUsageError
	}

	group, err := DecodeGroup(g.groupFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading group: %v\n", err)
		return nil, subcommands.ExitFailure
	}

	if err := kitty.ValidateExpenses(group.Expenses, currency); err != nil {
		fmt.Fprintf(os.Stderr, "Error in %s: %v\n", setting(g.groupFile, envGroupFile, defaultGroupFile), err)
		return nil, subcommands.ExitFailure
	}

	var rates kitty.RateSource
	if len(kitty.RateKeys(group.Expenses, currency)) > 0 {
		source, closer, err := OpenRates(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening rate source: %v\n", err)
			return nil, subcommands.ExitFailure
		}
		defer closer()
		table, err := kitty.Prefetch(ctx, source, group.Expenses, currency, prefetchLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching rates: %v\n", err)
			return nil, subcommands.ExitFailure
		}
		rates = table
	}

	balances, warnings, err := kitty.Aggregate(ctx, group.Expenses, currency, rates)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing balances: %v\n", err)
		return nil, subcommands.ExitFailure
	}

	var transfers []kitty.Transfer
	if !skipTransfers {
		transfers, err = kitty.Simplify(balances)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error settling balances: %v\n", err)
			return nil, subcommands.ExitFailure
		}
	}
	totals, err := kitty.Tally(ctx, group.Expenses, currency, rates)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing totals: %v\n", err)
		return nil, subcommands.ExitFailure
	}
	s := renderer.NewSettlement("Balances", currency, group.Participants, totals, balances, transfers, warnings)
	return s, subcommands.ExitSuccess
}

type balancesCmd struct{ groupFlags }

func (*balancesCmd) Name() string     { return "balances" }
func (*balancesCmd) Synopsis() string { return "display the net balance of each participant" }
func (*balancesCmd) Usage() string {
	return `kt balances [-c <currency>] [-f <group file>]

  Displays what each participant paid, owes and their net balance in the
  reference currency. Foreign expenses are converted at the rate of their
  date; expenses without a rate are left out and reported.
`
}

func (c *balancesCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *balancesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, status := c.settle(ctx, true)
	if status != subcommands.ExitSuccess {
		return status
	}
	printMarkdown(renderer.RenderSettlement(s, renderer.RenderOptions{SkipTransfers: true}))
	return subcommands.ExitSuccess
}

type settleCmd struct{ groupFlags }

func (*settleCmd) Name() string     { return "settle" }
func (*settleCmd) Synopsis() string { return "display the transfers that settle the group" }
func (*settleCmd) Usage() string {
	return `kt settle [-c <currency>] [-f <group file>]

  Displays the balances and a short list of transfers that brings every
  participant back to zero.
`
}

func (c *settleCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *settleCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, status := c.settle(ctx, false)
	if status != subcommands.ExitSuccess {
		return status
	}
	s.Title = "Settlement"
	printMarkdown(renderer.RenderSettlement(s, renderer.RenderOptions{}))
	return subcommands.ExitSuccess
}
