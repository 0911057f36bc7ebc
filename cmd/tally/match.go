package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/model"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Generate and review document-transaction match candidates",
	}
	cmd.AddCommand(matchGenerateCmd())
	cmd.AddCommand(matchListCmd())
	cmd.AddCommand(matchConfirmCmd())
	cmd.AddCommand(matchRejectCmd())
	cmd.AddCommand(matchUnmatchCmd())
	cmd.AddCommand(matchSplitCmd())
	return cmd
}

func matchGenerateCmd() *cobra.Command {
	var (
		documentID   string
		docType      string
		counterparty string
		description  string
		amount       float64
		date         string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate match candidates for a document",
		Long: `Generate scores every transaction in the document's date and amount window
and replaces the document's candidate set. Passing --type registers or
refreshes the document record first.`,
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

			if docType != "" {
				t := model.DocumentType(docType)
				if !t.Valid() {
					return fmt.Errorf("invalid document type %q (want invoice or payslip)", docType)
				}
				docDate, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid --date (want YYYY-MM-DD): %w", err)
				}
				doc := model.Document{
					ID:           documentID,
					TenantID:     tenantID,
					Type:         t,
					Date:         docDate,
					Counterparty: counterparty,
					Description:  description,
					Amount:       amount,
				}
				if err := store.SaveDocument(ctx, &doc); err != nil {
					return fmt.Errorf("failed to save document: %w", err)
				}
			}

			candidates, err := eng.Generator().Generate(ctx, tenantID, documentID)
			if err != nil {
				return err
			}

			fmt.Println(FormatSuccess(fmt.Sprintf("Generated %d candidate(s) for document %s", len(candidates), documentID))) //nolint:forbidigo // User-facing output
			renderCandidates(candidates)
			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "document", "", "document id (required)")
	cmd.Flags().StringVar(&docType, "type", "", "document type (registers the document when set)")
	cmd.Flags().StringVar(&counterparty, "counterparty", "", "document counterparty")
	cmd.Flags().StringVar(&description, "description", "", "document description")
	cmd.Flags().Float64Var(&amount, "amount", 0, "document amount")
	cmd.Flags().StringVar(&date, "date", "", "document date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("document")

	return cmd
}

func matchListCmd() *cobra.Command {
	var (
		documentID string
		showLog    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a document's match candidates",
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

			doc, err := store.GetDocument(ctx, documentID)
			if err != nil {
				return err
			}
			if doc.TenantID != tenantID {
				return fmt.Errorf("document %s not found for tenant %s", documentID, tenantID)
			}

			if showLog {
				entries, err := store.ListDecisions(ctx, documentID)
				if err != nil {
					return err
				}
				fmt.Println(FormatTitle(fmt.Sprintf("Decision Log for %s", documentID))) //nolint:forbidigo // User-facing output
				if len(entries) == 0 {
					fmt.Println(SubtleStyle.Render("No decisions recorded.")) //nolint:forbidigo // User-facing output
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, TableHeaderStyle.Render("WHEN\tACTION\tTRANSACTION\tACTOR\tSCORE\tTRANSITION"))
				for i := range entries {
					e := &entries[i]
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s → %s\n",
						e.CreatedAt.Format("2006-01-02 15:04"), e.Action, e.TransactionID,
						e.ActorID, e.CompositeScore, e.PriorStatus, e.NewStatus)
				}
				return w.Flush()
			}

			candidates, err := store.ListCandidates(ctx, documentID)
			if err != nil {
				return err
			}
			fmt.Println(FormatTitle(fmt.Sprintf("Match Candidates for %s", documentID))) //nolint:forbidigo // User-facing output
			renderCandidates(candidates)
			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "document", "", "document id (required)")
	cmd.Flags().BoolVar(&showLog, "log", false, "show the decision log instead of candidates")
	_ = cmd.MarkFlagRequired("document")

	return cmd
}

func renderCandidates(candidates []model.MatchCandidate) {
	if len(candidates) == 0 {
		fmt.Println(SubtleStyle.Render("No candidates above the score floor.")) //nolint:forbidigo // User-facing output
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, TableHeaderStyle.Render("CANDIDATE\tTRANSACTION\tSCORE\tBAND\tSTATUS\tFLAGS\tEXPLANATION"))
	for i := range candidates {
		c := &candidates[i]
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\t%s\t%s\n",
			c.ID, c.TransactionID, c.CompositeScore, renderBand(c.Band),
			c.Status, candidateFlags(c), c.Explanation)
	}
	_ = w.Flush()
}

func renderBand(band model.ConfidenceBand) string {
	switch band {
	case model.BandHigh:
		return SuccessStyle.Render(string(band))
	case model.BandMedium:
		return WarningStyle.Render(string(band))
	default:
		return SubtleStyle.Render(string(band))
	}
}

func candidateFlags(c *model.MatchCandidate) string {
	switch {
	case c.IsPartial:
		return "partial"
	case c.AlreadyMatched:
		return "txn matched elsewhere"
	default:
		return "-"
	}
}

func matchConfirmCmd() *cobra.Command {
	var actorID string

	cmd := &cobra.Command{
		Use:   "confirm <candidate-id>",
		Short: "Confirm a pending match candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := eng.Workflow().Confirm(ctx, tenantID, args[0], actorID); err != nil {
				return err
			}
			fmt.Println(FormatSuccess(fmt.Sprintf("Candidate %s confirmed", args[0]))) //nolint:forbidigo // User-facing output
			return nil
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "cli", "acting reviewer id")
	return cmd
}

func matchRejectCmd() *cobra.Command {
	var actorID string

	cmd := &cobra.Command{
		Use:   "reject <candidate-id>",
		Short: "Reject a pending match candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := eng.Workflow().Reject(ctx, tenantID, args[0], actorID); err != nil {
				return err
			}
			fmt.Println(FormatSuccess(fmt.Sprintf("Candidate %s rejected", args[0]))) //nolint:forbidigo // User-facing output
			return nil
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "cli", "acting reviewer id")
	return cmd
}

func matchUnmatchCmd() *cobra.Command {
	var actorID string

	cmd := &cobra.Command{
		Use:   "unmatch <candidate-id>",
		Short: "Revert a confirmed match to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := eng.Workflow().Unmatch(ctx, tenantID, args[0], actorID); err != nil {
				return err
			}
			fmt.Println(FormatSuccess(fmt.Sprintf("Candidate %s reverted to pending", args[0]))) //nolint:forbidigo // User-facing output
			return nil
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "cli", "acting reviewer id")
	return cmd
}

func matchSplitCmd() *cobra.Command {
	var (
		parentID string
		txnID    string
		actorID  string
	)

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Link an additional transaction to a confirmed match",
		Long: `Split records an installment payment: an extra transaction linked to a
document whose match is already confirmed. The link is a confirmed partial
candidate tied to the parent and exempt from exclusivity checks.`,
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

			if err := eng.Workflow().Split(ctx, tenantID, parentID, txnID, actorID); err != nil {
				return err
			}
			fmt.Println(FormatSuccess(fmt.Sprintf("Transaction %s linked as partial payment", txnID))) //nolint:forbidigo // User-facing output
			return nil
		},
	}

	cmd.Flags().StringVar(&parentID, "parent", "", "confirmed parent candidate id (required)")
	cmd.Flags().StringVar(&txnID, "txn", "", "transaction id to link (required)")
	cmd.Flags().StringVar(&actorID, "actor", "cli", "acting reviewer id")
	_ = cmd.MarkFlagRequired("parent")
	_ = cmd.MarkFlagRequired("txn")

	return cmd
}
