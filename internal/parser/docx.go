package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/reportgest/internal/doctree"
	"github.com/fumiama/go-docx"
)

// DOCXParser handles .docx sources linked from search results. Heading
// styles open sections; tables become one "cell | cell" line per row.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, name string) (*doctree.DocTree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	b := doctree.NewBuilder(baseTitle(name))
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			text := runsText(it.Children)
			if text == "" {
				continue
			}
			if level := styleLevel(it); level > 0 {
				b.Heading(level, text)
			} else {
				b.Paragraph(text)
			}
		case *docx.Table:
			b.Paragraph(tableText(it))
		}
	}
	return b.Tree(), nil
}

// styleLevel maps "Heading2", "heading 2" or "Title" paragraph styles to a
// heading level, or 0 for body text.
func styleLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	switch {
	case style == "title":
		return 1
	case style == "subtitle":
		return 2
	}
	if n, ok := strings.CutPrefix(style, "heading"); ok && len(n) == 1 && n[0] >= '1' && n[0] <= '6' {
		return int(n[0] - '0')
	}
	return 0
}

// runsText joins the text of runs, including runs inside hyperlinks.
func runsText(children []interface{}) string {
	var buf strings.Builder
	write := func(run *docx.Run) {
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	for _, child := range children {
		switch c := child.(type) {
		case *docx.Run:
			write(c)
		case *docx.Hyperlink:
			write(&c.Run)
		}
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}

func tableText(t *docx.Table) string {
	var rows []string
	for _, row := range t.TableRows {
		var cells []string
		for _, cell := range row.TableCells {
			var parts []string
			for _, para := range cell.Paragraphs {
				if s := runsText(para.Children); s != "" {
					parts = append(parts, s)
				}
			}
			cells = append(cells, strings.Join(parts, " "))
		}
		if line := strings.Trim(strings.Join(cells, " | "), " |"); line != "" {
			rows = append(rows, line)
		}
	}
	return strings.Join(rows, "\n")
}
