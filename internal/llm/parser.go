package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tallyhq/tally/internal/model"
)

// parseVerdict extracts the structured verdict from a model response,
// tolerating code fences and surrounding prose, and clamps the adjustment
// into the allowed band.
func parseVerdict(content string) (model.ValidationVerdict, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return model.ValidationVerdict{}, fmt.Errorf("no JSON object in response: %q", content)
	}

	var verdict model.ValidationVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &verdict); err != nil {
		return model.ValidationVerdict{}, fmt.Errorf("failed to parse verdict: %w", err)
	}

	if verdict.ConfidenceAdjustment > 0.2 {
		verdict.ConfidenceAdjustment = 0.2
	}
	if verdict.ConfidenceAdjustment < -0.2 {
		verdict.ConfidenceAdjustment = -0.2
	}

	switch verdict.Risk {
	case model.RiskLow, model.RiskMedium, model.RiskHigh:
	case "":
		verdict.Risk = model.RiskMedium
	default:
		return model.ValidationVerdict{}, fmt.Errorf("unknown risk level %q", verdict.Risk)
	}

	return verdict, nil
}
