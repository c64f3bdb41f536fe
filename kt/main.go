// Command kt settles the shared expenses of a group.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"

	"github.com/etnz/kitty/cmd"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// completion describes kt for shell completion, see COMP_INSTALL=1 kt.
func completion() *complete.Command {
	topics, _ := cmd.Topics()
	currencies := predict.Set{"EUR", "USD", "GBP", "CHF", "JPY", "CAD", "AUD", "SEK", "NOK", "DKK"}
	group := map[string]complete.Predictor{
		"c": currencies,
		"f": predict.Files("*.jsonl"),
	}
	return &complete.Command{
		Sub: map[string]*complete.Command{
			"balances": {Flags: group},
			"settle":   {Flags: group},
			"rate":     {Flags: map[string]complete.Predictor{"d": predict.Nothing}, Args: currencies},
			"serve":    {Flags: map[string]complete.Predictor{"addr": predict.Nothing}},
			"topic":    {Flags: map[string]complete.Predictor{"l": predict.Nothing}, Args: predict.Set(topics)},
		},
		Flags: map[string]complete.Predictor{
			"rates-url":      predict.Nothing,
			"rates-path":     predict.Nothing,
			"redis-addr":     predict.Nothing,
			"http-cache":     predict.Dirs("*"),
			"rate-ttl":       predict.Nothing,
			"rate-staleness": predict.Nothing,
			"raw":            predict.Nothing,
		},
	}
}

func main() {
	completion().Complete("kt")

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range cmd.Commands {
		commander.Register(c, "")
	}

	cmd.LoadEnv()
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
