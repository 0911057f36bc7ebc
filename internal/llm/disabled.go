package llm

import (
	"context"
	"fmt"

	"github.com/tallyhq/tally/internal/common"
	"github.com/tallyhq/tally/internal/model"
)

// disabledClient stands in when no validation provider is configured. Every
// request reports the gate as unavailable, so suggestions accumulate as
// pending instead of activating unreviewed.
type disabledClient struct{}

// Disabled returns a gate client that never issues verdicts.
func Disabled() Client {
	return disabledClient{}
}

// Validate implements Client.
func (disabledClient) Validate(_ context.Context, _ Request) (model.ValidationVerdict, error) {
	return model.ValidationVerdict{}, fmt.Errorf("%w: no validation provider configured", common.ErrValidationUnavailable)
}
