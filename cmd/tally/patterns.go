package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/model"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Manage active classification patterns",
	}
	cmd.AddCommand(patternsListCmd())
	cmd.AddCommand(patternsAddCmd())
	cmd.AddCommand(patternsDeactivateCmd())
	return cmd
}

func patternsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active classification patterns in evaluation order",
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

			patterns, err := eng.Patterns().ActiveRules(ctx, tenantID)
			if err != nil {
				return err
			}

			fmt.Println(FormatTitle("Active Classification Patterns")) //nolint:forbidigo // User-facing output
			if len(patterns) == 0 {
				fmt.Println(SubtleStyle.Render("No active patterns.")) //nolint:forbidigo // User-facing output
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, TableHeaderStyle.Render("ID\tPRIORITY\tMATCH TEXT\tFIELD\tVALUE\tCONFIDENCE\tPROVENANCE"))
			for i := range patterns {
				p := &patterns[i]
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%.2f\t%s\n",
					p.ID, p.Priority, p.MatchText, p.Field, p.Value, p.Confidence, p.Provenance)
			}
			return w.Flush()
		},
	}
}

func patternsAddCmd() *cobra.Command {
	var (
		matchText  string
		field      string
		value      string
		confidence float64
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a manually curated classification pattern",
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

			p, err := eng.Patterns().AddManual(ctx, tenantID, matchText, model.CorrectionField(field), value, confidence)
			if err != nil {
				return err
			}

			fmt.Println(FormatSuccess(fmt.Sprintf("Added manual pattern %d: %q sets %s=%q", //nolint:forbidigo // User-facing output
				p.ID, p.MatchText, p.Field, p.Value)))
			return nil
		},
	}

	cmd.Flags().StringVar(&matchText, "match-text", "", "SQL LIKE pattern to match transaction text (required)")
	cmd.Flags().StringVar(&field, "field", "", "classification field the pattern sets (required)")
	cmd.Flags().StringVar(&value, "value", "", "value the pattern assigns (required)")
	cmd.Flags().Float64Var(&confidence, "confidence", 1.0, "pattern confidence in (0,1]")
	_ = cmd.MarkFlagRequired("match-text")
	_ = cmd.MarkFlagRequired("field")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

func patternsDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <pattern-id>",
		Short: "Deactivate a classification pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tenantID, err := requireTenant()
			if err != nil {
				return err
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid pattern id %q: %w", args[0], err)
			}

			eng, store, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := eng.Patterns().Deactivate(ctx, tenantID, id); err != nil {
				return err
			}

			fmt.Println(FormatSuccess(fmt.Sprintf("Pattern %d deactivated", id))) //nolint:forbidigo // User-facing output
			return nil
		},
	}
}
