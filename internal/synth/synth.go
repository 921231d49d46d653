// Package synth reduces each sub-query's documents to one report section
// under a fixed context budget, then merges the sections into the draft
// report.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/reportgest/internal/chunker"
	"github.com/dgallion1/reportgest/internal/llm"
	"github.com/dgallion1/reportgest/internal/research"
	"github.com/samber/lo"
)

const maxTokens = 700

// Outcome tags how one sub-query's synthesis went.
type Outcome string

const (
	OutcomeSection   Outcome = "section"
	OutcomeNoSources Outcome = "no_sources"
	// OutcomeProvider means the LLM was unreachable after retries.
	OutcomeProvider Outcome = "provider_failure"
	// OutcomeUnusable means the LLM answered but nothing usable came back.
	OutcomeUnusable Outcome = "unusable_response"
)

// Synthesizer writes report sections from collected findings.
type Synthesizer struct {
	LLM    llm.Gateway
	Budget int
	Chunk  chunker.Config
	Log    *slog.Logger
}

func New(gw llm.Gateway, budget int, log *slog.Logger) *Synthesizer {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if log == nil {
		log = slog.Default()
	}
	return &Synthesizer{LLM: gw, Budget: budget, Chunk: chunker.DefaultConfig(), Log: log}
}

// Synthesize writes one section per findings and merges them into a draft.
// findings[i].Section is set for every sub-query that produced one.
// Sub-queries that fail are omitted and noted in Gaps; those that still
// have documents are kept in Pending for the quality gate. It fails with
// ErrSynthesisUnavailable only when the LLM was unreachable for every
// sub-query that had documents.
func (s *Synthesizer) Synthesize(ctx context.Context, findings []research.Findings, query string) (*research.ReportContent, error) {
	content := &research.ReportContent{
		Title:       query,
		Query:       query,
		GeneratedAt: time.Now(),
		SubQueries:  lo.Map(findings, func(f research.Findings, _ int) research.SubQuery { return f.SubQuery }),
	}

	var sections []research.ReportSection
	withDocs, unreachable := 0, 0
	var lastErr error
	for i := range findings {
		f := &findings[i]
		sec, outcome, err := s.SynthesizeOne(ctx, *f, query)
		if len(f.Documents) > 0 {
			withDocs++
		}
		switch outcome {
		case OutcomeSection:
			f.Section = sec
			sections = append(sections, *sec)
			continue
		case OutcomeNoSources:
			content.Gaps = append(content.Gaps, fmt.Sprintf("No usable sources were found for %q.", f.SubQuery.Text))
		case OutcomeProvider:
			unreachable++
			lastErr = err
			fallthrough
		default:
			content.Gaps = append(content.Gaps, fmt.Sprintf("Sources for %q could not be summarized.", f.SubQuery.Text))
			content.Pending = append(content.Pending, *f)
		}
		s.Log.Warn("sub-query omitted from report",
			"sub_query", f.SubQuery.Text, "outcome", outcome, "error", err)
	}

	if withDocs > 0 && unreachable == withDocs {
		return nil, fmt.Errorf("%w: %w", research.ErrSynthesisUnavailable, lastErr)
	}

	content.Sections, content.Reserve = Merge(query, sections, s.Budget)
	content.Recount()
	s.Conclude(ctx, content)
	s.Log.Info("draft synthesized",
		"sections", len(content.Sections),
		"reserve", len(content.Reserve),
		"pending", len(content.Pending),
		"insights", len(content.Insights),
		"recommendations", len(content.Recommendations),
		"words", content.WordCount)
	return content, nil
}

// SynthesizeOne writes the section for a single sub-query. The error is
// non-nil for every outcome except OutcomeSection and wraps
// ErrSynthesisGap, plus ErrProviderFailure when the LLM was unreachable.
func (s *Synthesizer) SynthesizeOne(ctx context.Context, f research.Findings, query string) (*research.ReportSection, Outcome, error) {
	if len(f.Documents) == 0 {
		return nil, OutcomeNoSources, fmt.Errorf("%w: %q has no documents", research.ErrSynthesisGap, f.SubQuery.Text)
	}
	budget := s.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	packed := Pack(query, f.SubQuery.Text, f.Documents, budget, s.Chunk)
	if packed.Text == "" {
		return nil, OutcomeUnusable, fmt.Errorf("%w: %q has no passages", research.ErrSynthesisGap, f.SubQuery.Text)
	}
	prompt := BuildSectionPrompt(query, f.SubQuery.Text, packed.Text)
	log := s.Log.With("sub_query", f.SubQuery.Text)
	log.Debug("context packed",
		"chars", len(packed.Text),
		"passages", packed.Passages,
		"candidates", packed.Candidates,
		"sources", len(packed.Sources),
		"prompt_tokens", chunker.EstimateTokens(prompt))

	raw, err := s.LLM.Complete(ctx, prompt, maxTokens)
	if err != nil {
		return nil, OutcomeProvider, fmt.Errorf("%w: %w: %w", research.ErrSynthesisGap, research.ErrProviderFailure, err)
	}

	d := parseDraft(raw)
	if !d.validate(f.SubQuery.Text) {
		return nil, OutcomeUnusable, fmt.Errorf("%w: empty section for %q", research.ErrSynthesisGap, f.SubQuery.Text)
	}
	body := chunker.CutAtWord(d.Body, budget)

	return &research.ReportSection{
		Heading: d.Heading,
		Body:    body,
		Citations: lo.Map(packed.Sources, func(doc research.SourceDocument, _ int) research.Citation {
			return research.Citation{URL: doc.URL, Title: lo.CoalesceOrEmpty(doc.Title, doc.URL)}
		}),
		KeyFindings:   d.KeyFindings,
		Evidence:      d.Evidence,
		Confidence:    *d.Confidence,
		SubQueryIndex: f.SubQuery.Index,
	}, OutcomeSection, nil
}
