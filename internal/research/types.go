// Package research holds the entities that flow through a report run and the
// error taxonomy shared by every stage.
package research

import (
	"strings"
	"time"
)

// Query limits.
const (
	MaxQueryChars = 500
)

// SubQuery is a narrower research question derived from the original query.
type SubQuery struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// DocStatus describes how a source document was obtained.
type DocStatus string

const (
	DocFetched DocStatus = "fetched"
	DocRetried DocStatus = "fetched_after_retry"
)

// SourceDocument is the cleaned text of one fetched URL.
type SourceDocument struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	ContentType string    `json:"content_type"`
	RawText     string    `json:"-"`
	CleanedText string    `json:"cleaned_text"`
	WordCount   int       `json:"word_count"`
	Status      DocStatus `json:"status"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// FetchFailure records why a candidate URL produced no document.
type FetchFailure struct {
	URL        string `json:"url"`
	Kind       string `json:"kind"`
	StatusCode int    `json:"status_code,omitempty"`
	Attempts   int    `json:"attempts"`
	Err        error  `json:"-"`
}

func (f FetchFailure) Error() string {
	if f.Err == nil {
		return "fetch " + f.URL + ": " + f.Kind
	}
	return "fetch " + f.URL + ": " + f.Err.Error()
}

// FindingsStatus tags how much of a sub-query's collection succeeded.
type FindingsStatus string

const (
	FindingsComplete FindingsStatus = "complete"
	FindingsPartial  FindingsStatus = "partial"
	FindingsEmpty    FindingsStatus = "empty"
)

// Findings is everything collected and synthesized for one sub-query.
type Findings struct {
	SubQuery  SubQuery         `json:"sub_query"`
	Documents []SourceDocument `json:"documents"`
	Failures  []FetchFailure   `json:"failures,omitempty"`
	Status    FindingsStatus   `json:"status"`
	Section   *ReportSection   `json:"section,omitempty"`
}

// Classify sets Status from the documents and failures recorded so far.
// A findings set that was cut short by a deadline is at best partial.
func (f *Findings) Classify(attempted int, interrupted bool) {
	switch {
	case len(f.Documents) == 0:
		f.Status = FindingsEmpty
	case interrupted || len(f.Documents) < attempted:
		f.Status = FindingsPartial
	default:
		f.Status = FindingsComplete
	}
}

// Citation points at a source used for a section.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ReportSection is one heading plus body in the final report.
type ReportSection struct {
	Heading       string     `json:"heading"`
	Body          string     `json:"body"`
	Citations     []Citation `json:"citations,omitempty"`
	KeyFindings   []string   `json:"key_findings,omitempty"`
	Evidence      []string   `json:"evidence,omitempty"`
	Confidence    float64    `json:"confidence"`
	SubQueryIndex int        `json:"sub_query_index"`
	Score         float64    `json:"score"`
}

// Words returns the body word count.
func (s ReportSection) Words() int {
	return CountWords(s.Body)
}

// ReportContent is the structured content handed to the renderer.
type ReportContent struct {
	Title       string          `json:"title"`
	Query       string          `json:"query"`
	GeneratedAt time.Time       `json:"generated_at"`
	SubQueries  []SubQuery      `json:"sub_queries"`
	Sections    []ReportSection `json:"sections"`
	WordCount   int             `json:"word_count"`
	Gaps        []string        `json:"gaps,omitempty"`

	// Insights and Recommendations span all sections. Either may be empty.
	Insights        []string `json:"insights,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`

	// Reserve holds sections removed while merging; the quality gate may
	// backfill from it. Never rendered.
	Reserve []ReportSection `json:"-"`
	// Pending holds findings with documents whose synthesis failed.
	Pending []Findings `json:"-"`
}

// Recount refreshes WordCount from the current sections.
func (c *ReportContent) Recount() int {
	total := 0
	for _, s := range c.Sections {
		total += s.Words()
	}
	c.WordCount = total
	return total
}

// HasCitations reports whether any section cites a source.
func (c *ReportContent) HasCitations() bool {
	for _, s := range c.Sections {
		if len(s.Citations) > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the sections so a stage can mutate freely.
func (c *ReportContent) Clone() *ReportContent {
	out := *c
	out.SubQueries = append([]SubQuery(nil), c.SubQueries...)
	out.Sections = cloneSections(c.Sections)
	out.Reserve = cloneSections(c.Reserve)
	out.Pending = append([]Findings(nil), c.Pending...)
	out.Gaps = append([]string(nil), c.Gaps...)
	out.Insights = append([]string(nil), c.Insights...)
	out.Recommendations = append([]string(nil), c.Recommendations...)
	return &out
}

func cloneSections(in []ReportSection) []ReportSection {
	if in == nil {
		return nil
	}
	out := make([]ReportSection, len(in))
	for i, s := range in {
		s.Citations = append([]Citation(nil), s.Citations...)
		s.KeyFindings = append([]string(nil), s.KeyFindings...)
		s.Evidence = append([]string(nil), s.Evidence...)
		out[i] = s
	}
	return out
}

// CountWords counts whitespace-separated words.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
