package decompose

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dgallion1/reportgest/internal/llm"
	"github.com/dgallion1/reportgest/internal/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted replies with each response in turn and records prompts.
type scripted struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
}

func (s *scripted) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "[]", nil
}

func texts(sqs []research.SubQuery) []string {
	out := make([]string, len(sqs))
	for i, sq := range sqs {
		out[i] = sq.Text
	}
	return out
}

func TestDecomposeHealthcareCoversKeyDimensions(t *testing.T) {
	gw := &scripted{responses: []string{"```json\n" + `[
		"How is AI used in medical diagnosis and imaging?",
		"How does AI change patient care and treatment in hospitals?",
		"What ethical concerns does AI raise in healthcare?",
		"What are the costs and economic impact of AI in healthcare?"
	]` + "\n```"}}

	sqs, err := New(gw, nil).Decompose(context.Background(), "Impact of AI in healthcare")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(sqs), 3)
	require.LessOrEqual(t, len(sqs), 5)

	joined := strings.ToLower(strings.Join(texts(sqs), " | "))
	for _, dim := range []string{"diagnosis", "patient care", "ethic"} {
		assert.Contains(t, joined, dim)
	}
	for i, sq := range sqs {
		assert.Equal(t, i, sq.Index)
	}
	assert.Len(t, gw.prompts, 1)
	assert.Contains(t, gw.prompts[0], "Impact of AI in healthcare")
}

func TestDecomposeOutputIsBoundedAndDistinct(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantLen  int
	}{
		{"caps at five", `["remote work tools","remote work burnout","remote work hiring","remote work security","remote work culture","remote work taxes"]`, 5},
		{"drops near duplicates", `["Benefits of remote work","Remote work benefits?","remote work challenges","remote work tools"]`, 3},
		{"drops unrelated", `["remote work tools","remote work burnout","history of the roman empire","remote work hiring"]`, 3},
		{"numbered list", "1. remote work tools\n2) remote work burnout\n- remote work hiring\n", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sqs, err := New(&scripted{responses: []string{tt.response}}, nil).Decompose(context.Background(), "remote work")
			require.NoError(t, err)
			assert.Len(t, sqs, tt.wantLen)
			for i := range sqs {
				for j := i + 1; j < len(sqs); j++ {
					assert.False(t, research.NearDuplicate(sqs[i].Text, sqs[j].Text), "%q ~ %q", sqs[i].Text, sqs[j].Text)
				}
				assert.True(t, research.SharesTerm(sqs[i].Text, "remote work"))
			}
		})
	}
}

func TestDecomposeRepromptsOnceWhenTooFew(t *testing.T) {
	gw := &scripted{responses: []string{
		`["remote work tools", "Remote work tools!"]`,
		`["remote work tools", "remote work burnout", "remote work hiring"]`,
	}}
	sqs, err := New(gw, nil).Decompose(context.Background(), "remote work")
	require.NoError(t, err)
	assert.Equal(t, []string{"remote work tools", "remote work burnout", "remote work hiring"}, texts(sqs))
	require.Len(t, gw.prompts, 2)
	assert.Contains(t, gw.prompts[1], "Do NOT repeat")
	assert.Contains(t, gw.prompts[1], "* remote work tools")
}

func TestDecomposeFailsAfterOneReprompt(t *testing.T) {
	gw := &scripted{responses: []string{`["remote work"]`, `["remote work", "cats"]`, `["never asked"]`}}
	_, err := New(gw, nil).Decompose(context.Background(), "remote work")
	require.ErrorIs(t, err, research.ErrInvalidQuery)
	assert.Len(t, gw.prompts, 2)
}

func TestDecomposeRejectsInvalidQueries(t *testing.T) {
	for _, q := range []string{"", "   ", "?!...", strings.Repeat("a", research.MaxQueryChars+1)} {
		gw := &scripted{}
		_, err := New(gw, nil).Decompose(context.Background(), q)
		require.ErrorIs(t, err, research.ErrInvalidQuery, "%q", q)
		assert.Empty(t, gw.prompts, "no LLM call for %q", q)
	}
}

func TestDecomposeShortQueryIsBroadened(t *testing.T) {
	gw := &scripted{responses: []string{`["What is AI?","Benefits of AI in business","Risks of AI for jobs"]`}}
	sqs, err := New(gw, nil).Decompose(context.Background(), "AI")
	require.NoError(t, err)
	assert.Len(t, sqs, 3)
	assert.Contains(t, gw.prompts[0], "short or broad")
}

func TestDecomposeQueryWithoutSalientTerms(t *testing.T) {
	tests := []struct {
		query    string
		response string
	}{
		{"C", `["How is C used in embedded systems?","What makes C memory management error prone?","Which compilers target C today?","Why do cats purr?"]`},
		{"R", `["How is R used in industry today?","Which R packages dominate data science?","How does R compare with Python for statistics?"]`},
		{"IT", `["How do IT teams manage cloud costs?","What security risks do IT departments face?","How is IT outsourcing changing?"]`},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			gw := &scripted{responses: []string{tt.response}}
			sqs, err := New(gw, nil).Decompose(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Len(t, sqs, 3)
			assert.Len(t, gw.prompts, 1)
			assert.Contains(t, gw.prompts[0], "short or broad")
		})
	}
}

func TestDecomposeProviderFailureIsFatal(t *testing.T) {
	gw := &scripted{errs: []error{&llm.Error{Kind: llm.KindRateLimited, StatusCode: 429}}}
	_, err := New(gw, nil).Decompose(context.Background(), "remote work")
	require.ErrorIs(t, err, research.ErrProviderFailure)
	var le *llm.Error
	assert.True(t, errors.As(err, &le))
}

func TestParseSubQueries(t *testing.T) {
	tests := []struct {
		name, raw string
		want      []string
	}{
		{"array", `["a b", "c d"]`, []string{"a b", "c d"}},
		{"prose around array", `Sure! ["a b", "c d"] Hope this helps.`, []string{"a b", "c d"}},
		{"objects", `[{"query":"a b"},{"text":"c d"},{"other":1}]`, []string{"a b", "c d"}},
		{"wrapped", `{"sub_queries":["a b"]}`, []string{"a b"}},
		{"bullets", "Here:\n* a b\n• c d\nnot a bullet", []string{"a b", "c d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSubQueries(tt.raw))
		})
	}
}
