package render

import (
	"github.com/dgallion1/reportgest/internal/parser"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// markdown writes a section body. Bodies are usually plain prose, but
// models sometimes answer with lists or emphasis, so the body is parsed
// as Markdown and each block laid out on its own.
func (w *writer) markdown(body string) {
	src := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		w.block(n, src, 0)
	}
}

func (w *writer) block(n ast.Node, src []byte, depth int) {
	pdf := w.pdf
	switch node := n.(type) {
	case *ast.Heading:
		pdf.SetFont(fontFamily, "B", 11)
		pdf.MultiCell(0, lineHeight+1, w.tr(parser.InlineText(node, src)), "", "L", false)
	case *ast.List:
		pdf.SetFont(fontFamily, "", 10.5)
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				if sub, ok := c.(*ast.List); ok {
					w.block(sub, src, depth+1)
					continue
				}
				w.bullet(parser.BlockText(c, src), depth)
			}
		}
		pdf.Ln(1.5)
	case *ast.ThematicBreak, *ast.HTMLBlock:
	default:
		t := parser.BlockText(n, src)
		if t == "" {
			return
		}
		pdf.SetFont(fontFamily, "", 10.5)
		pdf.MultiCell(0, lineHeight, w.tr(t), "", "J", false)
		pdf.Ln(2)
	}
}
