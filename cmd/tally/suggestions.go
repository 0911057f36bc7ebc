package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func suggestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggestions",
		Short: "Inspect and validate pattern suggestions",
	}
	cmd.AddCommand(suggestionsListCmd())
	cmd.AddCommand(suggestionsValidateCmd())
	return cmd
}

func suggestionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending pattern suggestions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			tenantID, err := requireTenant()
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			pending, err := store.ListPendingSuggestions(ctx, tenantID)
			if err != nil {
				return err
			}

			fmt.Println(FormatTitle("Pending Pattern Suggestions")) //nolint:forbidigo // User-facing output
			if len(pending) == 0 {
				fmt.Println(SubtleStyle.Render("No pending suggestions.")) //nolint:forbidigo // User-facing output
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, TableHeaderStyle.Render("ID\tPATTERN\tFIELD\tVALUE\tCOUNT\tCONFIDENCE\tUPDATED"))
			for i := range pending {
				s := &pending[i]
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%.2f\t%s\n",
					s.ID, s.PatternText, s.Field, s.NewValue,
					s.OccurrenceCount, s.Confidence, s.UpdatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}

func suggestionsValidateCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "validate [suggestion-id]",
		Short: "Run pending suggestions through the validation gate",
		Long: `Validate sends a pending suggestion to the validation gate and applies the
verdict: approval activates a classification pattern, rejection closes the
suggestion. With --all, every pending suggestion that has reached its
occurrence threshold is processed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tenantID, err := requireTenant()
			if err != nil {
				return err
			}
			if !all && len(args) == 0 {
				return fmt.Errorf("pass a suggestion id or --all")
			}

			eng, store, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if all {
				resolved, err := eng.ProcessPending(ctx, tenantID)
				if err != nil {
					return err
				}
				fmt.Println(FormatSuccess(fmt.Sprintf("Resolved %d suggestion(s)", resolved))) //nolint:forbidigo // User-facing output
				return nil
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid suggestion id %q: %w", args[0], err)
			}

			suggestion, err := store.GetSuggestion(ctx, id)
			if err != nil {
				return err
			}
			if suggestion.TenantID != tenantID {
				return fmt.Errorf("suggestion %d not found for tenant %s", id, tenantID)
			}

			if err := eng.ValidateSuggestion(ctx, id); err != nil {
				return err
			}

			resolved, err := store.GetSuggestion(ctx, id)
			if err != nil {
				return err
			}
			switch {
			case resolved.Verdict == nil:
				fmt.Println(FormatWarning(fmt.Sprintf("Suggestion %d is still %s", id, resolved.Status))) //nolint:forbidigo // User-facing output
			case resolved.Verdict.Approve:
				fmt.Println(FormatSuccess(fmt.Sprintf("Suggestion %d approved (risk %s): %s", id, resolved.Verdict.Risk, resolved.Verdict.Rationale))) //nolint:forbidigo // User-facing output
			default:
				fmt.Println(FormatWarning(fmt.Sprintf("Suggestion %d rejected (risk %s): %s", id, resolved.Verdict.Risk, resolved.Verdict.Rationale))) //nolint:forbidigo // User-facing output
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "validate every threshold-met pending suggestion")
	return cmd
}
