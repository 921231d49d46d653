package decompose

import (
	"fmt"
	"strings"
)

const basePrompt = `You are a research planner. Break the research query below into %s focused sub-queries that together cover the topic for a short report.

Rules:
- Each sub-query is a single self-contained search question.
- Each sub-query must mention the query's main subject.
- Cover different aspects; no two sub-queries may ask the same thing.
- Keep each sub-query under 20 words.
%s
Respond with ONLY a JSON array of strings, no prose, no markdown fences.

Query: %s`

const broadenHint = `- The query is short or broad. Expand it into distinct angles such as current state, benefits, challenges, real-world examples and outlook.
`

// buildPrompt renders the first decomposition prompt.
func buildPrompt(query string, short bool) string {
	hint := ""
	if short {
		hint = broadenHint
	}
	return fmt.Sprintf(basePrompt, "3 to 5", hint, query)
}

// buildRetryPrompt asks for more specific sub-queries that avoid the ones
// already accepted.
func buildRetryPrompt(query string, short bool, accepted []string, need int) string {
	var hint strings.Builder
	if short {
		hint.WriteString(broadenHint)
	}
	hint.WriteString("- Be more specific than a restatement of the query; name a concrete aspect in each sub-query.\n")
	if len(accepted) > 0 {
		hint.WriteString("- Do NOT repeat or rephrase any of these existing sub-queries:\n")
		for _, a := range accepted {
			hint.WriteString("  * " + a + "\n")
		}
	}
	return fmt.Sprintf(basePrompt, fmt.Sprintf("%d to 5", max(need, 1)), hint.String(), query)
}
