package synth

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/dgallion1/reportgest/internal/chunker"
	"github.com/dgallion1/reportgest/internal/doctree"
	"github.com/dgallion1/reportgest/internal/research"
)

// DefaultBudget is the context budget in characters for one section.
const DefaultBudget = 4000

const passageSep = "\n\n"

// Packed is the context for one sub-query.
type Packed struct {
	Text string
	// Sources are the documents whose passages made it into Text, in the
	// order their [n] labels were assigned.
	Sources []research.SourceDocument
	// Passages is how many passages were packed; Candidates how many there were.
	Passages   int
	Candidates int
}

type scoredPassage struct {
	doc     int // rank of the document, not its arrival position
	passage int
	text    string
	score   float64
}

// Pack ranks the passages of docs by query and sub-query term density and
// packs the best into at most budget characters. Each passage is labelled
// with its source number. A passage that does not fit is skipped, unless
// nothing has been packed yet, in which case it is cut at a word boundary.
func Pack(query, subQuery string, docs []research.SourceDocument, budget int, cfg chunker.Config) Packed {
	if budget <= 0 {
		budget = DefaultBudget
	}
	terms := research.TermSet(query + " " + subQuery)

	ranked := rankDocuments(docs, terms)
	var cands []scoredPassage
	for rank, doc := range ranked {
		for _, p := range chunker.Split(documentTree(doc), cfg) {
			cands = append(cands, scoredPassage{
				doc:     rank,
				passage: p.Index,
				text:    p.Text,
				score:   research.TermDensity(p.Text, terms),
			})
		}
	}
	slices.SortStableFunc(cands, func(a, b scoredPassage) int {
		return cmp.Or(
			cmp.Compare(b.score, a.score),
			cmp.Compare(a.doc, b.doc),
			cmp.Compare(a.passage, b.passage),
		)
	})

	out := Packed{Candidates: len(cands)}
	label := make(map[int]int)
	size := 0
	for _, c := range cands {
		n, ok := label[c.doc]
		if !ok {
			n = len(out.Sources) + 1
		}
		entry := fmt.Sprintf("[%d] %s", n, c.text)
		need := len(entry)
		if size > 0 {
			need += len(passageSep)
		}
		if size+need > budget {
			if size > 0 {
				continue
			}
			entry = chunker.CutAtWord(entry, budget)
			if entry == "" {
				continue
			}
			need = len(entry)
		}
		if !ok {
			label[c.doc] = n
			out.Sources = append(out.Sources, ranked[c.doc])
		}
		if size > 0 {
			out.Text += passageSep
		}
		out.Text += entry
		size += need
		out.Passages++
	}
	return out
}

// rankDocuments orders documents by overall term density, then URL, so
// the packing never depends on the order fetches completed in.
func rankDocuments(docs []research.SourceDocument, terms map[string]bool) []research.SourceDocument {
	type ranked struct {
		doc     research.SourceDocument
		density float64
	}
	rs := make([]ranked, len(docs))
	for i, d := range docs {
		rs[i] = ranked{doc: d, density: research.TermDensity(d.CleanedText, terms)}
	}
	slices.SortStableFunc(rs, func(a, b ranked) int {
		return cmp.Or(cmp.Compare(b.density, a.density), cmp.Compare(a.doc.URL, b.doc.URL))
	})
	out := make([]research.SourceDocument, len(rs))
	for i, r := range rs {
		out[i] = r.doc
	}
	return out
}

func documentTree(doc research.SourceDocument) *doctree.DocTree {
	b := doctree.NewBuilder(doc.Title)
	b.Paragraph(doc.CleanedText)
	return b.Tree()
}
