package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Run or inspect the monthly usage reset",
	}
	cmd.AddCommand(resetRunCmd(), resetStatsCmd())
	return cmd
}

func resetRunCmd() *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Back up usage, zero every account and reactivate the baseline",
		Args:  cobra.NoArgs,
		RunE: withServices(func(ctx context.Context, cmd *cobra.Command, rt *services, _ []string) error {
			run, err := rt.container.Resets.ManualReset(ctx, operator)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "reset %s: %d accounts at %s\n", run.RunID, run.AccountsCount, run.ResetAt.Format(time.RFC3339))
			if run.Baseline != nil {
				printSwitch(out, run.Baseline)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&operator, "operator", "cli", "name recorded in the reset history")
	return cmd
}

func resetStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show reset counts and the next scheduled boundary",
		Args:  cobra.NoArgs,
		RunE: withServices(func(ctx context.Context, cmd *cobra.Command, rt *services, _ []string) error {
			stats, err := rt.container.Resets.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		}),
	}
}
