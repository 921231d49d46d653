package quality

import (
	"encoding/json"
	"fmt"

	"github.com/dgallion1/reportgest/internal/research"
)

const rewritePrompt = `You are editing a short research report titled %q. Its sections currently total %d words; the report must total between %d and %d words (aim for about %d).

%s

Rewrite the section bodies to reach the target length. Keep every heading exactly as given and keep the sections in the same order. Do not add new sections, citations or facts that are not already present.

Return a JSON object: {"sections": [{"heading": "...", "body": "..."}]}

Respond with ONLY the JSON object, no other text.

---REPORT---
%s
---END REPORT---`

type rewriteSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

type rewriteReply struct {
	Sections []rewriteSection `json:"sections"`
}

func buildRewritePrompt(c *research.ReportContent, minWords, maxWords int) (string, error) {
	in := rewriteReply{}
	for _, s := range c.Sections {
		in.Sections = append(in.Sections, rewriteSection{Heading: s.Heading, Body: s.Body})
	}
	report, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return "", err
	}
	hint := "Shorten the bodies: remove repetition and minor detail first."
	if c.WordCount < minWords {
		hint = "Expand the bodies using the key findings and detail already implied by the text."
	}
	return fmt.Sprintf(rewritePrompt, c.Title, c.WordCount, minWords, maxWords, (minWords+maxWords)/2, hint, report), nil
}
