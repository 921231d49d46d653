package main

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dgallion1/reportgest/internal/research"
	"golang.org/x/term"
)

var (
	promptLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	promptHint  = lipgloss.NewStyle().Faint(true)
)

// readQuery takes the query from args, an interactive prompt when in is a
// terminal, or the first line of in.
func readQuery(args []string, in io.Reader, out io.Writer) (string, error) {
	if len(args) > 0 {
		return checkQuery(strings.Join(args, " "))
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		q, err := promptQuery(in, out)
		if err != nil {
			return "", err
		}
		return checkQuery(q)
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 4096), 64<<10)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", usagef("read query from stdin: %v", err)
		}
		return "", usagef("no query given: pass it as an argument or on stdin")
	}
	return checkQuery(sc.Text())
}

func checkQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	switch {
	case q == "":
		return "", usagef("query is empty")
	case len([]rune(q)) > research.MaxQueryChars:
		return "", usagef("query exceeds %d characters", research.MaxQueryChars)
	}
	return q, nil
}

var errPromptCancelled = errors.New("prompt cancelled")

type promptModel struct {
	input     textinput.Model
	submitted bool
	cancelled bool
}

func newPromptModel() promptModel {
	ti := textinput.New()
	ti.Placeholder = "e.g. Impact of AI in healthcare"
	ti.CharLimit = research.MaxQueryChars
	ti.Width = 60
	ti.Focus()
	return promptModel{input: ti}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			if strings.TrimSpace(m.input.Value()) == "" {
				return m, nil
			}
			m.submitted = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.submitted || m.cancelled {
		return ""
	}
	return promptLabel.Render("Research query") + "\n" +
		m.input.View() + "\n" +
		promptHint.Render("enter to start, esc to cancel") + "\n"
}

// promptQuery asks for the query with an inline text input.
func promptQuery(in io.Reader, out io.Writer) (string, error) {
	final, err := tea.NewProgram(newPromptModel(), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return "", usagef("query prompt: %v", err)
	}
	m := final.(promptModel)
	if m.cancelled || !m.submitted {
		return "", usageError{errPromptCancelled}
	}
	return m.input.Value(), nil
}
