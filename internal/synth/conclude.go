package synth

import (
	"context"
	"encoding/json"

	"github.com/dgallion1/reportgest/internal/llm"
	"github.com/dgallion1/reportgest/internal/research"
)

const (
	conclusionMaxTokens = 400
	maxConclusionItems  = 4
)

type conclusion struct {
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

// Conclude fills c.Insights and c.Recommendations with one LLM call over
// the merged sections. Any failure leaves both empty; the report is still
// usable without them.
func (s *Synthesizer) Conclude(ctx context.Context, c *research.ReportContent) {
	c.Insights, c.Recommendations = nil, nil
	if len(c.Sections) == 0 {
		return
	}
	raw, err := s.LLM.Complete(ctx, BuildConclusionPrompt(c.Query, c.Sections, c.Gaps), conclusionMaxTokens)
	if err != nil {
		s.Log.Warn("insights skipped", "error", err)
		return
	}
	var out conclusion
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &out); err != nil {
		s.Log.Warn("insights skipped: unparseable reply", "error", err)
		return
	}
	c.Insights = cleanList(out.Insights, maxConclusionItems)
	c.Recommendations = cleanList(out.Recommendations, maxConclusionItems)
}
