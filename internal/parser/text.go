package parser

import (
	"bufio"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/dgallion1/reportgest/internal/doctree"
)

// TextParser handles plain text bodies. Hard-wrapped lines are reflowed
// into paragraphs and heading-like lines open sections: a short line
// underlined with "===" or "---", or a numbered title such as
// "2. Methods".
type TextParser struct{}

var (
	underlineRe    = regexp.MustCompile(`^\s*(=+|-+)\s*$`)
	numberedHeadRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.?\s+(\p{Lu}.{0,70})$`)
)

// maxHeadingWords bounds how long a line may be and still read as a title.
const maxHeadingWords = 10

func (p *TextParser) Parse(r io.Reader, name string) (*doctree.DocTree, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(strings.ReplaceAll(scanner.Text(), "\f", ""), " \t"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	b := doctree.NewBuilder(baseTitle(name))
	var para []string
	flush := func() {
		if len(para) > 0 {
			b.Paragraph(strings.Join(para, " "))
			para = para[:0]
		}
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "":
			flush()
		case i+1 < len(lines) && underlineRe.MatchString(lines[i+1]) && isTitleLine(line) && len(para) == 0:
			level := 1
			if strings.HasPrefix(strings.TrimSpace(lines[i+1]), "-") {
				level = 2
			}
			b.Heading(level, line)
			i++
		case len(para) == 0 && numberedHeadRe.MatchString(line) && isTitleLine(line) && nextIsBlank(lines, i):
			// Numbered titles nest below an underlined document title.
			m := numberedHeadRe.FindStringSubmatch(line)
			b.Heading(strings.Count(m[1], ".")+2, line)
		default:
			para = append(para, line)
		}
	}
	flush()
	return b.Tree(), nil
}

func isTitleLine(line string) bool {
	if len(strings.Fields(line)) > maxHeadingWords {
		return false
	}
	last, _ := lastRune(line)
	return !strings.ContainsRune(".,;:", last) || unicode.IsDigit(last)
}

func nextIsBlank(lines []string, i int) bool {
	return i+1 >= len(lines) || strings.TrimSpace(lines[i+1]) == ""
}

func lastRune(s string) (rune, bool) {
	rs := []rune(s)
	if len(rs) == 0 {
		return 0, false
	}
	return rs[len(rs)-1], true
}
