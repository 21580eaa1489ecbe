// Package commands is the alfredo command line.
package commands

import (
	"github.com/spf13/cobra"
)

const (
	defaultConfig  = "./config.json"
	defaultPidfile = "./alfredo.pid"
)

type options struct {
	config  string
	pidfile string
}

func New() *cobra.Command {
	oo := &options{}

	cmd := &cobra.Command{
		Use:   "alfredo",
		Short: "Telegram bot announcing Alfredo evenings as polls.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, oo)
		},
	}
	cmd.PersistentFlags().StringVar(&oo.config, "config", defaultConfig, "path to config json/yaml")
	cmd.PersistentFlags().StringVar(&oo.pidfile, "pidfile", defaultPidfile, "pid file written by run and read by signal; empty disables it for run")

	AddCommands(cmd, oo)
	return cmd
}

func AddCommands(topLevel *cobra.Command, oo *options) {
	addRun(topLevel, oo)
	addMaintain(topLevel, oo)
	addSignal(topLevel, oo)
	addVersion(topLevel)
}
