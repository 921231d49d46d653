package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/reportgest/internal/parser"
	"github.com/dgallion1/reportgest/internal/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleContent() *research.ReportContent {
	return &research.ReportContent{
		Title:       "Remote work productivity tips",
		Query:       "Remote work productivity tips",
		GeneratedAt: time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC),
		SubQueries: []research.SubQuery{
			{Text: "remote work focus techniques", Index: 0},
			{Text: "remote work home office setup", Index: 1},
		},
		Gaps: []string{`No usable sources were found for "remote work costs".`},
		Sections: []research.ReportSection{
			{
				Heading:   "Focus techniques",
				Body:      strings.Repeat("Remote workers protect deep focus blocks. ", 30),
				Citations: []research.Citation{{URL: "https://example.com/focus", Title: "Focus study"}},
			},
			{
				Heading: "Home office setup",
				Body:    "A good chair matters.\n\n- Natural light\n- A **separate** room\n  - with a door\n\nCafé noise is naïve advice.",
				Citations: []research.Citation{
					{URL: "https://example.com/focus", Title: "Focus study"},
					{URL: "https://example.org/office", Title: "Office guide"},
				},
			},
		},
	}
}

func TestRenderProducesReadablePDF(t *testing.T) {
	out, err := New(DefaultOptions()).Render(sampleContent())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	pages, err := parser.PageCount(out)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pages, 3, "title, body and references pages")
}

func TestRenderUncompressedContainsText(t *testing.T) {
	opts := DefaultOptions()
	opts.Compress = false
	out, err := New(opts).Render(sampleContent())
	require.NoError(t, err)

	for _, want := range []string{
		"Remote work productivity tips",
		"1. Focus techniques",
		"2. Home office setup",
		"Questions investigated",
		"Coverage gaps",
		"References",
		"[2] Office guide",
		"Natural light",
		"https://example.org/office",
	} {
		assert.True(t, bytes.Contains(out, []byte(want)), "missing %q", want)
	}
	assert.False(t, bytes.Contains(out, []byte("**separate**")), "emphasis markers are stripped")
	assert.Equal(t, 1, bytes.Count(out, []byte("[1] Focus study")), "references are deduplicated")
}

func TestRenderConclusionsPage(t *testing.T) {
	opts := DefaultOptions()
	opts.Compress = false

	c := sampleContent()
	c.Insights = []string{"Focus and setup reinforce each other."}
	c.Recommendations = []string{"Block two hours daily."}
	out, err := New(opts).Render(c)
	require.NoError(t, err)
	for _, want := range []string{"Conclusions", "Key insights", "Focus and setup reinforce each other.", "Recommendations", "Block two hours daily."} {
		assert.True(t, bytes.Contains(out, []byte(want)), "missing %q", want)
	}
	withPage, err := parser.PageCount(out)
	require.NoError(t, err)

	out, err = New(opts).Render(sampleContent())
	require.NoError(t, err)
	assert.False(t, bytes.Contains(out, []byte("Conclusions")))
	without, err := parser.PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, without+1, withPage)
}

func TestRenderSkipsReferencesWithoutCitations(t *testing.T) {
	c := sampleContent()
	for i := range c.Sections {
		c.Sections[i].Citations = nil
	}
	opts := DefaultOptions()
	opts.Compress = false
	out, err := New(opts).Render(c)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(out, []byte("References")))
}

func TestRenderRejectsEmptyReport(t *testing.T) {
	_, err := New(DefaultOptions()).Render(&research.ReportContent{Title: "x"})
	assert.True(t, errors.Is(err, research.ErrRenderFailure))

	_, err = New(DefaultOptions()).Render(nil)
	assert.True(t, errors.Is(err, research.ErrRenderFailure))
}
