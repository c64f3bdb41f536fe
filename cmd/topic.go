package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/kitty/docs"
	"github.com/google/subcommands"
)

// Topics returns the names accepted by kt topic, readme first and "*" last.
func Topics() ([]string, error) {
	all, err := docs.GetAllTopics()
	if err != nil {
		return nil, err
	}
	return append(append([]string{"readme"}, all...), "*"), nil
}

type topicCmd struct {
	list bool
}

func (*topicCmd) Name() string     { return "topic" }
func (*topicCmd) Synopsis() string { return "show the user manual" }
func (*topicCmd) Usage() string {
	return `kt topic [-l] [<topic>...]

  Prints the manual pages for the given topics, the readme when none is
  given and every page for "*". -l lists the topics instead.
`
}

func (c *topicCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.list, "l", false, "list the available topics")
}

func (c *topicCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	known, err := Topics()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing topics: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.list {
		for _, t := range known[:len(known)-1] {
			fmt.Fprintln(stdout, t)
		}
		return subcommands.ExitSuccess
	}

	names := f.Args()
	if len(names) == 0 {
		names = []string{"readme"}
	}
	valid := make(map[string]bool, len(known))
	for _, t := range known {
		valid[t] = true
	}
	for _, n := range names {
		if !valid[n] {
			fmt.Fprintf(os.Stderr, "Unknown topic %q, want one of: %s\n", n, strings.Join(known, ", "))
			return subcommands.ExitUsageError
		}
	}

	doc, err := docs.GetTopics(names...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading topic: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(doc)
	return subcommands.ExitSuccess
}
