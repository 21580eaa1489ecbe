package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"alfredo/internal/app"
)

func addMaintain(topLevel *cobra.Command, oo *options) {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Send tomorrow's reminder and fix the pinned poll, then exit.",
		Long: `Runs the daily maintenance once in this process. Use it from an external
scheduler when the bot instance cannot be signalled. Do not combine it with a
bot that is processing commands against the same database at the same moment;
prefer "alfredo signal" for a running instance.`,
		Example: `
alfredo maintain --config config.json
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			a, err := app.NewApp(oo.config)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			a.MaintainOnce(ctx)
			return a.Close()
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "upper bound for the maintenance run")
	topLevel.AddCommand(cmd)
}
