package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/reportgest/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown bodies using goldmark. The HTML parser
// also feeds its converted main content through here.
type MarkdownParser struct {
	// Title overrides the name-derived title when set.
	Title string
}

func (p *MarkdownParser) Parse(r io.Reader, name string) (*doctree.DocTree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	title := p.Title
	if title == "" {
		title = baseTitle(name)
	}
	b := doctree.NewBuilder(title)
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			b.Heading(node.Level, InlineText(node, src))
		case *ast.ThematicBreak, *ast.HTMLBlock:
		default:
			b.Paragraph(BlockText(n, src))
		}
	}
	return b.Tree(), nil
}

// BlockText renders a goldmark block as plain text. List items become
// "- item" lines; code blocks keep their raw lines.
func BlockText(n ast.Node, src []byte) string {
	switch node := n.(type) {
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var buf bytes.Buffer
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return strings.TrimSpace(buf.String())
	case *ast.List:
		var items []string
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if t := BlockText(c, src); t != "" {
				items = append(items, "- "+t)
			}
		}
		return strings.Join(items, "\n")
	}

	if fc := n.FirstChild(); fc != nil && fc.Type() == ast.TypeInline {
		return InlineText(n, src)
	}
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := BlockText(c, src); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// InlineText concatenates the text of n's inline descendants, dropping
// link targets, images and emphasis markers.
func InlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Text:
				buf.Write(node.Segment.Value(src))
				switch {
				case node.HardLineBreak():
					buf.WriteByte('\n')
				case node.SoftLineBreak():
					buf.WriteByte(' ')
				}
			case *ast.String:
				buf.Write(node.Value)
			case *ast.AutoLink:
				buf.Write(node.Label(src))
			case *ast.Image, *ast.RawHTML:
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}
