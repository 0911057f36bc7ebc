package llm

import (
	"context"
	"sync"

	"github.com/tallyhq/tally/internal/model"
)

// MockClient is a scriptable validation gate for tests and dry runs.
type MockClient struct {
	mu       sync.Mutex
	Verdict  model.ValidationVerdict
	Err      error
	Requests []Request
}

// NewMockClient returns a mock gate that approves everything with low risk.
func NewMockClient() *MockClient {
	return &MockClient{
		Verdict: model.ValidationVerdict{
			Approve:   true,
			Risk:      model.RiskLow,
			Rationale: "mock approval",
		},
	}
}

// Validate records the request and returns the configured verdict or error.
func (m *MockClient) Validate(_ context.Context, req Request) (model.ValidationVerdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return model.ValidationVerdict{}, m.Err
	}
	return m.Verdict, nil
}
