package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"alfredo/internal/text"
)

func addVersion(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the bot version.",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), text.Version)
		},
	}
	topLevel.AddCommand(cmd)
}
