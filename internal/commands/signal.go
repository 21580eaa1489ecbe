package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func addSignal(topLevel *cobra.Command, oo *options) {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Ask a running bot to run its maintenance (SIGUSR1).",
		Example: `
alfredo signal --pidfile /run/alfredo.pid
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			if oo.pidfile == "" {
				return errNoPidfile
			}
			pid, err := readPidfile(oo.pidfile)
			if err != nil {
				return err
			}
			if err := sendMaintenanceSignal(pid); err != nil {
				return fmt.Errorf("signal pid %d: %w", pid, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "maintenance requested from pid %d\n", pid)
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

var errNoPidfile = errors.New("no pidfile given")

var errSignalUnsupported = errors.New("maintenance signal not supported on this platform")
