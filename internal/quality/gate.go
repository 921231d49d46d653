// Package quality applies one bounded corrective pass to a draft report
// before it is rendered.
package quality

import (
	"cmp"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"unicode"

	"github.com/dgallion1/reportgest/internal/chunker"
	"github.com/dgallion1/reportgest/internal/llm"
	"github.com/dgallion1/reportgest/internal/research"
	"github.com/dgallion1/reportgest/internal/synth"
)

const (
	DefaultMinWords = 300
	DefaultMaxWords = 500

	rewriteMaxTokens = 1500
)

// Resynthesizer writes the section for one sub-query.
type Resynthesizer interface {
	SynthesizeOne(ctx context.Context, f research.Findings, query string) (*research.ReportSection, synth.Outcome, error)
}

// Action names a corrective step the gate took.
type Action string

const (
	ActionDropIrrelevant Action = "drop_irrelevant"
	ActionBackfill       Action = "backfill"
	ActionResynthesize   Action = "resynthesize"
	ActionRewrite        Action = "rewrite"
	ActionTrim           Action = "trim"
	ActionPad            Action = "pad"
)

// Gate runs the quality pass. LLM and Synth are optional; without them the
// gate falls back to mechanical corrections.
type Gate struct {
	LLM      llm.Gateway
	Synth    Resynthesizer
	MinWords int
	MaxWords int
	// Budget caps every section body, in characters.
	Budget int
	Log    *slog.Logger
}

func New(gw llm.Gateway, s Resynthesizer, budget int, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{LLM: gw, Synth: s, MinWords: DefaultMinWords, MaxWords: DefaultMaxWords, Budget: budget, Log: log}
}

// Improve returns a corrected copy of draft. Each check runs at most once,
// in order: relevance, section count, word count. It never fails; a check
// that cannot be satisfied leaves the report as good as it got.
func (g *Gate) Improve(ctx context.Context, draft *research.ReportContent) *research.ReportContent {
	out, _ := g.ImproveWithActions(ctx, draft)
	return out
}

// ImproveWithActions is Improve that also reports the steps taken.
func (g *Gate) ImproveWithActions(ctx context.Context, draft *research.ReportContent) (*research.ReportContent, []Action) {
	c := draft.Clone()
	minW, maxW := g.bounds()
	var actions []Action

	if dropped := g.dropIrrelevant(c); dropped > 0 {
		actions = append(actions, ActionDropIrrelevant)
		if g.backfill(c, len(c.Sections)+dropped) > 0 {
			actions = append(actions, ActionBackfill)
		}
	}

	if len(c.Sections) < synth.MinSections {
		if g.resynthesize(ctx, c) {
			actions = append(actions, ActionResynthesize)
		}
		if len(c.Sections) < synth.MinSections && g.backfill(c, synth.MinSections) > 0 {
			actions = append(actions, ActionBackfill)
		}
	}
	slices.SortStableFunc(c.Sections, func(a, b research.ReportSection) int {
		return cmp.Compare(a.SubQueryIndex, b.SubQueryIndex)
	})

	if words := c.Recount(); len(c.Sections) > 0 && (words < minW || words > maxW) {
		switch {
		case g.rewrite(ctx, c, minW, maxW):
			actions = append(actions, ActionRewrite)
		case words > maxW:
			g.trim(c, minW, maxW)
			actions = append(actions, ActionTrim)
		default:
			if g.pad(c, minW, maxW) {
				actions = append(actions, ActionPad)
			}
		}
	}
	c.Recount()

	g.Log.Info("quality pass complete",
		"sections", len(c.Sections),
		"words", c.WordCount,
		"actions", actions)
	return c, actions
}

func (g *Gate) bounds() (int, int) {
	minW, maxW := g.MinWords, g.MaxWords
	if minW <= 0 {
		minW = DefaultMinWords
	}
	if maxW <= 0 {
		maxW = DefaultMaxWords
	}
	return minW, maxW
}

func (g *Gate) budget() int {
	if g.Budget <= 0 {
		return synth.DefaultBudget
	}
	return g.Budget
}

func relevant(query string, s research.ReportSection) bool {
	return research.SharesTerm(s.Heading+" "+s.Body, query)
}

// dropIrrelevant removes sections that share no salient term with the query.
func (g *Gate) dropIrrelevant(c *research.ReportContent) int {
	before := len(c.Sections)
	c.Sections = slices.DeleteFunc(c.Sections, func(s research.ReportSection) bool {
		if relevant(c.Query, s) {
			return false
		}
		g.Log.Warn("section dropped as off-topic", "heading", s.Heading)
		return true
	})
	return before - len(c.Sections)
}

// backfill moves relevant reserve sections into the report, best first,
// until it holds want sections or the reserve runs out.
func (g *Gate) backfill(c *research.ReportContent, want int) int {
	want = min(want, synth.MaxSections)
	added := 0
	for len(c.Sections) < want {
		i := slices.IndexFunc(c.Reserve, func(s research.ReportSection) bool { return relevant(c.Query, s) })
		if i < 0 {
			break
		}
		g.Log.Info("section backfilled from reserve", "heading", c.Reserve[i].Heading)
		c.Sections = append(c.Sections, c.Reserve[i])
		c.Reserve = slices.Delete(c.Reserve, i, i+1)
		added++
	}
	return added
}

// resynthesize retries the pending findings with the most documents once.
func (g *Gate) resynthesize(ctx context.Context, c *research.ReportContent) bool {
	if g.Synth == nil || len(c.Pending) == 0 {
		return false
	}
	best := 0
	for i, f := range c.Pending {
		if len(f.Documents) > len(c.Pending[best].Documents) {
			best = i
		}
	}
	f := c.Pending[best]
	c.Pending = slices.Delete(c.Pending, best, best+1)

	sec, outcome, err := g.Synth.SynthesizeOne(ctx, f, c.Query)
	if err != nil || outcome != synth.OutcomeSection {
		g.Log.Warn("resynthesis failed", "sub_query", f.SubQuery.Text, "outcome", outcome, "error", err)
		return false
	}
	if !relevant(c.Query, *sec) {
		g.Log.Warn("resynthesized section is off-topic", "sub_query", f.SubQuery.Text)
		return false
	}
	sec.Score = synth.Score(c.Query, *sec)
	c.Sections = append(c.Sections, *sec)
	return true
}

// rewrite asks the LLM once to bring the report into range. The result is
// used only if every heading survives and the total lands in range.
func (g *Gate) rewrite(ctx context.Context, c *research.ReportContent, minW, maxW int) bool {
	if g.LLM == nil {
		return false
	}
	prompt, err := buildRewritePrompt(c, minW, maxW)
	if err != nil {
		return false
	}
	// A rewritten word averages under eight characters with spacing.
	raw, err := g.LLM.Complete(ctx, prompt, max(rewriteMaxTokens, chunker.TokensForChars(maxW*8)))
	if err != nil {
		g.Log.Warn("rewrite unavailable, correcting mechanically", "error", err)
		return false
	}

	var reply rewriteReply
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &reply); err != nil || len(reply.Sections) != len(c.Sections) {
		g.Log.Warn("rewrite rejected: malformed reply")
		return false
	}
	total := 0
	for i, rs := range reply.Sections {
		if research.Normalize(rs.Heading) != research.Normalize(c.Sections[i].Heading) {
			g.Log.Warn("rewrite rejected: heading changed", "want", c.Sections[i].Heading, "got", rs.Heading)
			return false
		}
		if len(rs.Body) > g.budget() {
			g.Log.Warn("rewrite rejected: section over budget", "heading", rs.Heading)
			return false
		}
		total += research.CountWords(rs.Body)
	}
	if total < minW || total > maxW {
		g.Log.Warn("rewrite rejected: still out of range", "words", total)
		return false
	}
	for i, rs := range reply.Sections {
		c.Sections[i].Body = strings.TrimSpace(rs.Body)
	}
	return true
}

// trim shortens the longest bodies at sentence boundaries until the total
// is at most maxW. A sentence is cut on words instead when dropping it
// whole would fall below minW.
func (g *Gate) trim(c *research.ReportContent, minW, maxW int) {
	total := c.Recount()
	for total > maxW {
		i := longest(c.Sections)
		body := c.Sections[i].Body
		words := research.CountWords(body)
		excess := total - maxW

		shorter, ok := dropLastSentence(body)
		if !ok || total-(words-research.CountWords(shorter)) < minW {
			if words <= 1 {
				return
			}
			shorter = chunker.TruncateWords(body, max(words-excess, 1))
		}
		c.Sections[i].Body = shorter
		total = c.Recount()
	}
}

// pad appends key findings not already in a body, in section order, until
// the total reaches minW without passing maxW. It reports whether anything was added.
func (g *Gate) pad(c *research.ReportContent, minW, maxW int) bool {
	total := c.Recount()
	added := false
	for i := range c.Sections {
		s := &c.Sections[i]
		for _, k := range s.KeyFindings {
			if total >= minW {
				return added
			}
			sentence := asSentence(k)
			w := research.CountWords(sentence)
			if total+w > maxW || strings.Contains(research.Normalize(s.Body), research.Normalize(k)) {
				continue
			}
			if len(s.Body)+1+len(sentence) > g.budget() {
				continue
			}
			s.Body = strings.TrimSpace(s.Body + " " + sentence)
			total += w
			added = true
		}
	}
	return added
}

func longest(sections []research.ReportSection) int {
	best := 0
	for i, s := range sections {
		if s.Words() > sections[best].Words() {
			best = i
		}
	}
	return best
}

// dropLastSentence removes the final sentence of body. It fails when body
// is a single sentence.
func dropLastSentence(body string) (string, bool) {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	for i := len(runes) - 2; i > 0; i-- {
		switch runes[i] {
		case '.', '!', '?':
			if unicode.IsSpace(runes[i+1]) {
				return strings.TrimSpace(string(runes[:i+1])), true
			}
		}
	}
	return body, false
}

func asSentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if last := s[len(s)-1]; last != '.' && last != '!' && last != '?' {
		s += "."
	}
	return s
}
