package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <announcement-id>",
		Short: "Collect and analyze one announcement, then print the report name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("announcement id must be a number: %w", err)
			}

			state, err := app.Manager().Run(cmd.Context(), id)
			if err != nil {
				return err
			}
			if state.Status != tender.TaskCompleted {
				msg := state.Message
				if state.Error != nil {
					msg = *state.Error
				}
				return fmt.Errorf("run failed: %s", msg)
			}
			fmt.Fprintln(cmd.OutOrStdout(), *state.Result)
			return nil
		},
	}
}
