package llm

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are a reviewer of auto-learned financial classification rules. " +
	"You MUST respond with ONLY a valid JSON object of the form " +
	`{"approve": bool, "confidence_adjustment": number, "risk": "low"|"medium"|"high", "rationale": string}. ` +
	"confidence_adjustment must be between -0.2 and 0.2. Do not include any text before or after the JSON."

// buildPrompt renders the suggestion context for the gate.
func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A pattern was learned from %d manual corrections.\n\n", req.OccurrenceCount)
	fmt.Fprintf(&b, "Pattern text: %s\n", req.PatternText)
	fmt.Fprintf(&b, "Proposed rule: set %s to %q whenever a transaction description matches the pattern.\n\n", req.Field, req.NewValue)

	if len(req.Examples) > 0 {
		b.WriteString("Example descriptions that triggered corrections:\n")
		for i, example := range req.Examples {
			fmt.Fprintf(&b, "%d. %s\n", i+1, example)
		}
		b.WriteString("\n")
	}

	b.WriteString("Assess whether applying this rule automatically is safe. ")
	b.WriteString("Consider whether the pattern is specific enough to avoid misclassifying unrelated transactions.")
	return b.String()
}
