// Package render lays out report content as a PDF.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dgallion1/reportgest/internal/research"
	"github.com/go-pdf/fpdf"
	"github.com/samber/lo"
)

// Options controls the PDF output.
type Options struct {
	// Compress deflates page streams. Tests turn it off to grep the output.
	Compress bool
	PageSize string // "A4" or "Letter"
	Author   string
}

func DefaultOptions() Options {
	return Options{Compress: true, PageSize: "A4", Author: "reportgest"}
}

// Renderer turns ReportContent into PDF bytes.
type Renderer struct {
	Opts Options
}

func New(opts Options) *Renderer {
	if opts.PageSize == "" {
		opts.PageSize = "A4"
	}
	return &Renderer{Opts: opts}
}

const (
	fontFamily = "Helvetica"
	lineHeight = 5.5
)

// Render produces the PDF: a title page, one block per section, a
// conclusions page when there are insights or recommendations, and a
// references page when any section cites a source. Every failure wraps
// research.ErrRenderFailure.
func (r *Renderer) Render(c *research.ReportContent) ([]byte, error) {
	if c == nil || len(c.Sections) == 0 {
		return nil, fmt.Errorf("%w: report has no sections", research.ErrRenderFailure)
	}

	pdf := fpdf.New("P", "mm", r.Opts.PageSize, "")
	pdf.SetCompression(r.Opts.Compress)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("{nb}")
	if !c.GeneratedAt.IsZero() {
		pdf.SetCreationDate(c.GeneratedAt)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(c.Title, true)
	pdf.SetAuthor(r.Opts.Author, true)
	pdf.SetCreator("reportgest", true)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})

	w := &writer{pdf: pdf, tr: tr}
	w.titlePage(c)
	w.sections(c)
	w.conclusions(c)
	if c.HasCitations() {
		w.references(c)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", research.ErrRenderFailure, err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", research.ErrRenderFailure, err)
	}
	return buf.Bytes(), nil
}

// writer carries the document and the cp1252 translator core fonts need.
type writer struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (w *writer) titlePage(c *research.ReportContent) {
	pdf := w.pdf
	pdf.AddPage()
	pdf.Ln(40)
	pdf.SetFont(fontFamily, "B", 22)
	pdf.MultiCell(0, 10, w.tr(c.Title), "", "C", false)
	pdf.Ln(6)

	pdf.SetFont(fontFamily, "", 11)
	pdf.MultiCell(0, 6, w.tr("Research query: "+c.Query), "", "C", false)
	if !c.GeneratedAt.IsZero() {
		pdf.MultiCell(0, 6, w.tr("Generated "+c.GeneratedAt.Format("January 2, 2006 15:04 MST")), "", "C", false)
	}

	if len(c.SubQueries) > 0 {
		pdf.Ln(12)
		pdf.SetFont(fontFamily, "B", 12)
		pdf.CellFormat(0, 8, "Questions investigated", "", 1, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 10)
		for _, sq := range c.SubQueries {
			w.bullet(sq.Text, 0)
		}
	}
	if len(c.Gaps) > 0 {
		pdf.Ln(6)
		pdf.SetFont(fontFamily, "B", 12)
		pdf.CellFormat(0, 8, "Coverage gaps", "", 1, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 10)
		for _, g := range c.Gaps {
			w.bullet(g, 0)
		}
	}
}

func (w *writer) sections(c *research.ReportContent) {
	pdf := w.pdf
	pdf.AddPage()
	for i, s := range c.Sections {
		if i > 0 {
			pdf.Ln(4)
		}
		pdf.SetFont(fontFamily, "B", 14)
		pdf.MultiCell(0, 8, w.tr(fmt.Sprintf("%d. %s", i+1, s.Heading)), "", "L", false)
		pdf.Ln(1)
		w.markdown(s.Body)

		if len(s.Citations) > 0 {
			pdf.SetFont(fontFamily, "I", 8)
			pdf.SetTextColor(90, 90, 90)
			titles := lo.Map(s.Citations, func(ct research.Citation, _ int) string { return ct.Title })
			pdf.MultiCell(0, 4, w.tr("Sources: "+strings.Join(titles, "; ")), "", "L", false)
			pdf.SetTextColor(0, 0, 0)
		}
	}
}

func (w *writer) conclusions(c *research.ReportContent) {
	if len(c.Insights) == 0 && len(c.Recommendations) == 0 {
		return
	}
	pdf := w.pdf
	pdf.AddPage()
	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 10, "Conclusions", "", 1, "L", false, 0, "")
	for _, part := range []struct {
		title string
		items []string
	}{
		{"Key insights", c.Insights},
		{"Recommendations", c.Recommendations},
	} {
		if len(part.items) == 0 {
			continue
		}
		pdf.Ln(3)
		pdf.SetFont(fontFamily, "B", 12)
		pdf.CellFormat(0, 8, part.title, "", 1, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 10.5)
		for _, item := range part.items {
			w.bullet(item, 0)
		}
	}
}

func (w *writer) references(c *research.ReportContent) {
	pdf := w.pdf
	pdf.AddPage()
	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 10, "References", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	var all []research.Citation
	for _, s := range c.Sections {
		all = append(all, s.Citations...)
	}
	for i, ct := range lo.UniqBy(all, func(ct research.Citation) string { return ct.URL }) {
		pdf.SetFont(fontFamily, "", 10)
		pdf.MultiCell(0, lineHeight, w.tr(fmt.Sprintf("[%d] %s", i+1, ct.Title)), "", "L", false)
		pdf.SetFont(fontFamily, "U", 9)
		pdf.SetTextColor(20, 60, 160)
		pdf.SetX(pdf.GetX() + 6)
		pdf.WriteLinkString(lineHeight, w.tr(ct.URL), ct.URL)
		pdf.SetTextColor(0, 0, 0)
		pdf.Ln(lineHeight + 2)
	}
}

func (w *writer) bullet(text string, depth int) {
	pdf := w.pdf
	left, _, _, _ := pdf.GetMargins()
	indent := left + 4 + float64(depth)*6
	pdf.SetX(indent)
	pdf.CellFormat(4, lineHeight, w.tr("•"), "", 0, "L", false, 0, "")
	pdf.MultiCell(0, lineHeight, w.tr(text), "", "L", false)
}
