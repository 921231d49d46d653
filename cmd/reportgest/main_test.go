package main

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dgallion1/reportgest/internal/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"usage", usagef("bad flag"), exitUsage},
		{"wrapped usage", fmt.Errorf("outer: %w", usagef("bad")), exitUsage},
		{"pipeline", &research.PipelineError{Stage: research.StageCollecting, Cause: research.ErrNoSources}, exitFailed},
		{"other", errors.New("disk full"), exitFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestOutputPath(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "custom.pdf", outputPath("custom.pdf", "reports", "anything", at))
	assert.Equal(t,
		filepath.Join("reports", "report-remote-work-productivity-tip-20260304-050607.pdf"),
		outputPath("", "reports", "Remote work productivity tips", at))
	assert.Equal(t,
		filepath.Join(".", "report-report-20260304-050607.pdf"),
		outputPath("", ".", "?!", at))
}

func TestReadQuery(t *testing.T) {
	q, err := readQuery([]string{"Impact", "of", "AI"}, strings.NewReader("ignored"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "Impact of AI", q)

	q, err = readQuery(nil, strings.NewReader("  Remote work tips \nsecond line\n"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "Remote work tips", q)

	_, err = readQuery(nil, strings.NewReader(""), &bytes.Buffer{})
	assert.Equal(t, exitUsage, exitCode(err))

	_, err = readQuery([]string{strings.Repeat("x", research.MaxQueryChars+1)}, nil, &bytes.Buffer{})
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestPromptModel(t *testing.T) {
	var m tea.Model = newPromptModel()
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.(promptModel).submitted, "empty input is not submitted")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("remote work")})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	pm := m.(promptModel)
	assert.True(t, pm.submitted)
	assert.Equal(t, "remote work", pm.input.Value())
	assert.Empty(t, pm.View())

	m, _ = newPromptModel().Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.True(t, m.(promptModel).cancelled)
}

func TestRunUsageErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REPORTGEST_CONFIG", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	var stdout, stderr bytes.Buffer
	code := run([]string{"remote work"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "ANTHROPIC_API_KEY")
	assert.Empty(t, stdout.String())

	stderr.Reset()
	code = run([]string{"--no-such-flag"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, exitUsage, code)

	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	stderr.Reset()
	code = run(nil, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "no query given")

	stderr.Reset()
	code = run([]string{"--config", "missing.yaml", "remote work"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
}

func TestServeRequiresAPIKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REPORTGEST_CONFIG", "")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("REPORTGEST_API_KEY", "")

	var stdout, stderr bytes.Buffer
	code := run([]string{"serve"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "REPORTGEST_API_KEY")
}
