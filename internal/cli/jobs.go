package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/okian/pointsledger/internal/adapters/csvinput"
	service "github.com/okian/pointsledger/internal/app"
	"github.com/okian/pointsledger/internal/domain/job"
)

func (r *root) importCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "import <participants.csv>",
		Short: "Imports a CSV of participants, resolves their points and prints the report.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			ds, err := csvinput.Parse(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if source == "" {
				source = filepath.Base(args[0])
			}

			return r.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				j, err := svc.StartUpload(ctx, r.flags.Account, source, ds)
				if err != nil {
					return err
				}
				return drive(ctx, cmd, svc, j)
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Source label stored on the job (default: file name).")
	return cmd
}

func (r *root) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-resolves every stored participant of the account, honoring the cooldown.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				j, err := svc.StartRefresh(ctx, r.flags.Account)
				if err != nil {
					return err
				}
				return drive(ctx, cmd, svc, j)
			})
		},
	}
}

// drive processes j batch by batch, reporting progress on stderr, then
// finalizes it and renders the report.
func drive(ctx context.Context, cmd *cobra.Command, svc *service.Service, j *job.Job) error {
	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "job %s: %d participants in %d batches\n", j.ID, len(j.Participants), len(j.Batches))
	for _, w := range j.Warnings {
		fmt.Fprintln(errOut, "warning:", w)
	}

	for j.CanContinue() {
		next, err := svc.ProcessNextBatch(ctx, j.ID)
		if err != nil {
			return err
		}
		j = next
		b := j.Batches[j.BatchIndex-1]
		p := j.Progress()
		fmt.Fprintf(errOut, "batch %d/%d %s (%d/%d, %.0f%%)\n",
			b.Index+1, len(j.Batches), b.Status, p.Processed, p.Total, p.Percent)
	}

	report, err := svc.Finalize(ctx, j.ID)
	if err != nil {
		return err
	}
	renderReport(cmd.OutOrStdout(), report)
	return nil
}
