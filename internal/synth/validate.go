package synth

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"github.com/dgallion1/reportgest/internal/llm"
	"github.com/samber/lo"
)

const (
	maxHeadingChars = 120
	maxKeyFindings  = 4
	maxEvidence     = 3
	// defaultConfidence applies when the model omits or garbles the field.
	defaultConfidence = 0.5
)

// draftSection is the JSON shape the model is asked for.
type draftSection struct {
	Heading     string   `json:"heading"`
	Body        string   `json:"body"`
	KeyFindings []string `json:"key_findings"`
	Evidence    []string `json:"evidence"`
	Confidence  *float64 `json:"confidence"`
}

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`forget\s+(everything|all)|new\s+instructions)`,
)

// parseDraft reads the model reply. Replies that are not JSON are taken as
// plain text: a short first line becomes the heading, the rest the body.
func parseDraft(raw string) draftSection {
	var d draftSection
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &d); err == nil && strings.TrimSpace(d.Body) != "" {
		return d
	}

	text := strings.TrimSpace(llm.StripCodeBlock(raw))
	first, rest, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(strings.TrimLeft(first, "# "))
	if rest != "" && len(strings.Fields(first)) <= 12 {
		return draftSection{Heading: strings.Trim(first, "*"), Body: strings.TrimSpace(rest)}
	}
	return draftSection{Body: text}
}

// validate cleans a draft in place. It reports false when nothing usable
// remains.
func (d *draftSection) validate(fallbackHeading string) bool {
	d.Body = normalizeBody(d.Body)
	if len(strings.Fields(d.Body)) < 5 {
		return false
	}

	d.Heading = strings.Join(strings.Fields(strings.Trim(d.Heading, "#*\"' ")), " ")
	if d.Heading == "" || len(d.Heading) > maxHeadingChars || injectionPattern.MatchString(d.Heading) {
		d.Heading = headingFrom(fallbackHeading)
	}

	d.KeyFindings = cleanList(d.KeyFindings, maxKeyFindings)
	d.Evidence = cleanList(d.Evidence, maxEvidence)

	if d.Confidence == nil || *d.Confidence < 0 || *d.Confidence > 1 {
		c := defaultConfidence
		d.Confidence = &c
	}
	return true
}

// cleanList collapses whitespace in each item, drops duplicates, empty,
// oversized or instruction-like items, and keeps at most n.
func cleanList(items []string, n int) []string {
	out := lo.Filter(lo.Uniq(lo.Map(items, func(k string, _ int) string {
		return strings.Join(strings.Fields(k), " ")
	})), func(k string, _ int) bool {
		return len(k) >= 3 && len(k) <= 300 && !injectionPattern.MatchString(k)
	})
	return lo.Slice(out, 0, n)
}

// normalizeBody collapses whitespace within each line and runs of blank
// lines to one, so Markdown lists and paragraph breaks survive.
func normalizeBody(body string) string {
	var lines []string
	blank := false
	for _, line := range strings.Split(body, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = len(lines) > 0
			continue
		}
		if blank {
			lines = append(lines, "")
			blank = false
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// headingFrom turns a sub-query into a heading: trailing punctuation
// dropped and the first letter capitalized.
func headingFrom(subQuery string) string {
	h := strings.TrimRight(strings.TrimSpace(subQuery), "?.!")
	if h == "" {
		return "Findings"
	}
	r := []rune(h)
	return string(unicode.ToUpper(r[0])) + string(r[1:])
}
