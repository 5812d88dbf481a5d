// Command vnodectl drives the vnode runtime's three components
// standalone: the paged B-tree index, the TMQ scan engine, and the
// stream task executor. It replaces the old storage-engine demo/bench
// binaries with subcommands scoped to the new runtime.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// subcommand pairs a cobra.Command with the vnode state it needs,
// mirroring the inspectors/repairers registration pattern: every
// subcommand appends itself to a package-level slice from an init(),
// and main() wires them onto the root command in one pass.
type subcommand struct {
	cmd *cobra.Command
}

var subcommands []subcommand

func register(cmd *cobra.Command) {
	subcommands = append(subcommands, subcommand{cmd: cmd})
}

func main() {
	var verbosity string

	root := &cobra.Command{
		Use:           "vnodectl",
		Short:         "Inspect and exercise the vnode storage/query/stream runtime",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&verbosity, "verbosity", "info", "log level (debug, info, warn, error)")

	for _, sc := range subcommands {
		root.AddCommand(sc.cmd)
	}

	cobra.OnInitialize(func() {
		lvl, err := logrus.ParseLevel(verbosity)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		logrus.SetLevel(lvl)
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vnodectl:", err)
		os.Exit(1)
	}
}

func newLogger() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}
