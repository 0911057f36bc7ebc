// Package llm provides the validation gate: an LLM-backed reviewer that
// scores pattern suggestions before they may become classification rules.
// The engine tolerates gate unavailability by leaving suggestions pending;
// nothing here ever auto-activates a rule.
package llm

import (
	"context"
	"time"

	"github.com/tallyhq/tally/internal/model"
)

// Client defines the interface for validation gate providers.
type Client interface {
	Validate(ctx context.Context, req Request) (model.ValidationVerdict, error)
}

// Request carries the full suggestion context sent to the gate.
type Request struct {
	PatternText     string   `json:"pattern_text"`
	Field           string   `json:"field"`
	NewValue        string   `json:"new_value"`
	Examples        []string `json:"examples"`
	OccurrenceCount int      `json:"occurrence_count"`
}

// Config describes the provider settings for the validation gate.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}
