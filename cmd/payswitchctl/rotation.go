package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/payswitch-backend/internal/rotation"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/security"
)

func rotationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotation",
		Short: "Switch the active merchant account and check gateway settings",
	}
	cmd.AddCommand(rotationSwitchCmd(), rotationAutoCmd(), rotationReconcileCmd())
	return cmd
}

func rotationSwitchCmd() *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "switch <account-id>",
		Short: "Make the given account active",
		Args:  cobra.ExactArgs(1),
		RunE: withServices(func(ctx context.Context, cmd *cobra.Command, rt *services, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "account id must be a uuid")
			}
			res, err := rt.container.Rotation.ManualSwitch(ctx, id, operator)
			if err != nil {
				return err
			}
			printSwitch(cmd.OutOrStdout(), res)
			return nil
		}),
	}
	cmd.Flags().StringVar(&operator, "operator", "cli", "name recorded in the switch history")
	return cmd
}

func rotationAutoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auto",
		Short: "Move off the active account if it has no headroom left",
		Args:  cobra.NoArgs,
		RunE: withServices(func(ctx context.Context, cmd *cobra.Command, rt *services, _ []string) error {
			res, err := rt.container.Rotation.AutoSwitch(ctx)
			if err != nil {
				return err
			}
			printSwitch(cmd.OutOrStdout(), res)
			return nil
		}),
	}
}

func rotationReconcileCmd() *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare gateway payment settings with the active account",
		Args:  cobra.NoArgs,
		RunE: withServices(func(ctx context.Context, cmd *cobra.Command, rt *services, _ []string) error {
			run := rt.container.Rotation.Reconcile
			if repair {
				run = rt.container.Rotation.Resync
			}
			report, err := run(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		}),
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "push the active account's credentials when they differ")
	return cmd
}

func printSwitch(w io.Writer, res *rotation.SwitchResult) {
	if res == nil {
		fmt.Fprintln(w, "no change")
		return
	}
	if !res.Switched {
		reason := res.Skipped
		if reason == "" {
			reason = "not needed"
		}
		fmt.Fprintf(w, "no switch: %s\n", reason)
		return
	}
	from := "none"
	if res.Previous != nil {
		from = fmt.Sprintf("%s (%s)", res.Previous.Name, security.MaskMerchantID(res.Previous.MerchantID))
	}
	to := "none"
	if res.Account != nil {
		to = fmt.Sprintf("%s (%s)", res.Account.Name, security.MaskMerchantID(res.Account.MerchantID))
	}
	fmt.Fprintf(w, "switched %s -> %s [%s]\n", from, to, res.Reason)
}
