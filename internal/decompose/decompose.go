// Package decompose turns a research query into a small set of distinct,
// relevant sub-queries.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dgallion1/reportgest/internal/llm"
	"github.com/dgallion1/reportgest/internal/research"
	"github.com/samber/lo"
)

const (
	MinSubQueries = 3
	MaxSubQueries = 5

	maxTokens = 512
)

// Decomposer asks the LLM for sub-queries and validates them.
type Decomposer struct {
	LLM llm.Gateway
	Log *slog.Logger
}

func New(gw llm.Gateway, log *slog.Logger) *Decomposer {
	if log == nil {
		log = slog.Default()
	}
	return &Decomposer{LLM: gw, Log: log}
}

// ValidateQuery trims q and rejects empty, punctuation-only or over-long
// queries.
func ValidateQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	switch {
	case q == "":
		return "", research.InvalidQueryf("query is empty")
	case len([]rune(q)) > research.MaxQueryChars:
		return "", research.InvalidQueryf("query exceeds %d characters", research.MaxQueryChars)
	case !research.HasWordChars(q):
		return "", research.InvalidQueryf("query has no letters or digits")
	}
	return q, nil
}

// Decompose returns 3 to 5 sub-queries for query. It re-prompts once when
// too few valid sub-queries come back.
func (d *Decomposer) Decompose(ctx context.Context, query string) ([]research.SubQuery, error) {
	query, err := ValidateQuery(query)
	if err != nil {
		return nil, err
	}
	short := len(research.SalientTerms(query)) < 2

	raw, err := d.LLM.Complete(ctx, buildPrompt(query, short), maxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: decompose: %w", research.ErrProviderFailure, err)
	}
	accepted := d.accept(query, nil, ParseSubQueries(raw))

	if len(accepted) < MinSubQueries {
		d.Log.Warn("too few valid sub-queries, re-prompting",
			"query", query, "accepted", len(accepted))
		raw, err = d.LLM.Complete(ctx, buildRetryPrompt(query, short, accepted, MinSubQueries-len(accepted)), maxTokens)
		if err != nil {
			return nil, fmt.Errorf("%w: decompose retry: %w", research.ErrProviderFailure, err)
		}
		accepted = d.accept(query, accepted, ParseSubQueries(raw))
	}
	if len(accepted) < MinSubQueries {
		return nil, research.InvalidQueryf("only %d distinct sub-queries could be derived", len(accepted))
	}

	accepted = lo.Slice(accepted, 0, MaxSubQueries)
	return lo.Map(accepted, func(text string, i int) research.SubQuery {
		return research.SubQuery{Text: text, Index: i}
	}), nil
}

// accept appends the valid candidates to accepted, in order.
func (d *Decomposer) accept(query string, accepted, candidates []string) []string {
	for _, c := range candidates {
		c = cleanCandidate(c)
		switch {
		case c == "" || !research.HasWordChars(c):
			continue
		case len([]rune(c)) > research.MaxQueryChars:
			d.Log.Warn("sub-query dropped: too long", "sub_query", truncate(c, 80))
			continue
		case !research.SharesTerm(c, query):
			d.Log.Warn("sub-query dropped: unrelated to query", "query", query, "sub_query", c)
			continue
		case lo.ContainsBy(accepted, func(a string) bool { return research.NearDuplicate(a, c) }):
			d.Log.Debug("sub-query dropped: near-duplicate", "sub_query", c)
			continue
		}
		accepted = append(accepted, c)
	}
	return accepted
}

type candidateObject struct {
	Query    string `json:"query"`
	SubQuery string `json:"sub_query"`
	Text     string `json:"text"`
}

var listItemRe = regexp.MustCompile(`^\s*(?:\d+[.):]|[-*•])\s+(.+)$`)

// ParseSubQueries reads a JSON array (of strings or {"query": ...}
// objects), a {"sub_queries": [...]} object, or a numbered/bulleted list.
func ParseSubQueries(raw string) []string {
	body := llm.ExtractJSON(raw)

	var list []string
	if err := json.Unmarshal([]byte(body), &list); err == nil {
		return list
	}
	var objs []candidateObject
	if err := json.Unmarshal([]byte(body), &objs); err == nil {
		return lo.FilterMap(objs, func(o candidateObject, _ int) (string, bool) {
			s := lo.CoalesceOrEmpty(o.Query, o.SubQuery, o.Text)
			return s, s != ""
		})
	}
	var wrapped struct {
		SubQueries []string `json:"sub_queries"`
		Queries    []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(body), &wrapped); err == nil {
		if len(wrapped.SubQueries) > 0 {
			return wrapped.SubQueries
		}
		if len(wrapped.Queries) > 0 {
			return wrapped.Queries
		}
	}

	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if m := listItemRe.FindStringSubmatch(line); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}

// cleanCandidate strips quotes, markdown emphasis and surrounding space.
func cleanCandidate(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`*")
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
