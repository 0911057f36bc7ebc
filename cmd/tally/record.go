package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/tracker"
)

func recordCmd() *cobra.Command {
	var (
		txnID       string
		field       string
		value       string
		userID      string
		description string
		origin      string
		destination string
		currency    string
		amount      float64
		date        string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a manual classification correction",
		Long: `Record captures one manual edit to a transaction's classification as an
immutable correction event and runs it through the pattern learning
pipeline. Passing --description registers or refreshes the transaction
snapshot first, so a fresh database can be exercised end to end.`,
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

			if description != "" {
				txnDate := time.Now().UTC()
				if date != "" {
					txnDate, err = time.Parse("2006-01-02", date)
					if err != nil {
						return fmt.Errorf("invalid --date (want YYYY-MM-DD): %w", err)
					}
				}
				snapshot := model.Transaction{
					ID:          txnID,
					TenantID:    tenantID,
					Date:        txnDate,
					Description: description,
					Origin:      origin,
					Destination: destination,
					Currency:    currency,
					Amount:      amount,
				}
				if err := store.SaveTransactions(ctx, []model.Transaction{snapshot}); err != nil {
					return fmt.Errorf("failed to save transaction: %w", err)
				}
			}

			txn, err := store.GetTransaction(ctx, txnID)
			if err != nil {
				return fmt.Errorf("failed to load transaction %s: %w", txnID, err)
			}
			if txn.TenantID != tenantID {
				return fmt.Errorf("transaction %s not found for tenant %s", txnID, tenantID)
			}

			event, err := eng.RecordCorrection(ctx, tracker.Request{
				TenantID:    tenantID,
				UserID:      userID,
				Transaction: *txn,
				Field:       model.CorrectionField(field),
				NewValue:    value,
			})
			if err != nil {
				return err
			}

			fmt.Println(FormatSuccess(fmt.Sprintf("Recorded correction %s: %s %q → %q", //nolint:forbidigo // User-facing output
				event.ID, event.Field, event.OldValue, event.NewValue)))

			// One-shot invocations have no background worker, so drain any
			// suggestion this correction pushed over its threshold right here.
			resolved, err := eng.ProcessPending(ctx, tenantID)
			if err != nil {
				return err
			}
			if resolved > 0 {
				fmt.Println(FormatInfo(fmt.Sprintf("%d suggestion(s) sent through the validation gate", resolved))) //nolint:forbidigo // User-facing output
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&txnID, "txn", "", "transaction id (required)")
	cmd.Flags().StringVar(&field, "field", "", "classification field: entity, category, subcategory, justification (required)")
	cmd.Flags().StringVar(&value, "value", "", "corrected value (required)")
	cmd.Flags().StringVar(&userID, "user", "cli", "acting user id")
	cmd.Flags().StringVar(&description, "description", "", "transaction description (registers the snapshot when set)")
	cmd.Flags().StringVar(&origin, "origin", "", "transaction origin account")
	cmd.Flags().StringVar(&destination, "destination", "", "transaction destination account")
	cmd.Flags().StringVar(&currency, "currency", "USD", "transaction currency")
	cmd.Flags().Float64Var(&amount, "amount", 0, "transaction amount")
	cmd.Flags().StringVar(&date, "date", "", "transaction date (YYYY-MM-DD, defaults to today)")
	_ = cmd.MarkFlagRequired("txn")
	_ = cmd.MarkFlagRequired("field")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}
