package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Regenerate match candidates for all unmatched documents",
		Long: `Sweep regenerates candidates for every unmatched document of the tenant,
flags suggestions the validation gate has left pending too long, and then
runs the validation catch-up pass.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			tenantID, err := requireTenant()
			if err != nil {
				return err
			}

			eng, store, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			result, err := eng.Sweep(ctx, tenantID, !noProgress)
			if err != nil {
				return err
			}

			resolved, err := eng.ProcessPending(ctx, tenantID)
			if err != nil {
				return err
			}

			fmt.Println(FormatTitle("Sweep Summary"))                                                            //nolint:forbidigo // User-facing output
			fmt.Println(FormatInfo(fmt.Sprintf("Documents scored: %d", result.Documents)))                       //nolint:forbidigo // User-facing output
			fmt.Println(FormatInfo(fmt.Sprintf("Candidates generated: %d", result.Candidates)))                  //nolint:forbidigo // User-facing output
			fmt.Println(FormatInfo(fmt.Sprintf("Suggestions resolved: %d", resolved)))                           //nolint:forbidigo // User-facing output
			if result.Failed > 0 {
				fmt.Println(FormatWarning(fmt.Sprintf("Documents failed: %d", result.Failed))) //nolint:forbidigo // User-facing output
			}
			if result.Stale > 0 {
				fmt.Println(FormatWarning(fmt.Sprintf("Stale suggestions flagged: %d", result.Stale))) //nolint:forbidigo // User-facing output
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}
