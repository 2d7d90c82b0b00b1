package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	service "github.com/okian/pointsledger/internal/app"
)

// ErrConfirmationRequired is returned by purge without --yes.
var ErrConfirmationRequired = errors.New("refusing to purge without --yes")

func (r *root) nextRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next-refresh",
		Short: "Shows when the account may be refreshed again.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				e, err := svc.RefreshEligibility(ctx, r.flags.Account)
				if err != nil {
					return err
				}
				renderEligibility(cmd.OutOrStdout(), r.flags.Account, e)
				return nil
			})
		},
	}
}

func (r *root) participantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "participants",
		Aliases: []string{"ls"},
		Short:   "Lists participants with their latest points and weekly change.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				ss, err := svc.Participants(ctx, r.flags.Account)
				if err != nil {
					return err
				}
				renderStandings(cmd.OutOrStdout(), ss)
				return nil
			})
		},
	}
}

func (r *root) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <participant-id>",
		Short: "Prints the points history of one participant, newest first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid participant id %q", args[0])
			}
			return r.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				records, err := svc.History(ctx, r.flags.Account, id)
				if err != nil {
					return err
				}
				renderHistory(cmd.OutOrStdout(), records)
				return nil
			})
		},
	}
}

func (r *root) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Prints ledger counters.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				renderStats(cmd.OutOrStdout(), svc.GetStats(ctx))
				return nil
			})
		},
	}
}

func (r *root) purgeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Deletes every participant, record and job of the account.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return ErrConfirmationRequired
			}
			return r.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				if err := svc.Purge(ctx, r.flags.Account); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "account %s purged\n", r.flags.Account)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the purge.")
	return cmd
}
