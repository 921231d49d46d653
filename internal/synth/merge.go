package synth

import (
	"cmp"
	"slices"

	"github.com/dgallion1/reportgest/internal/chunker"
	"github.com/dgallion1/reportgest/internal/research"
	"github.com/samber/lo"
)

const (
	MinSections = 3
	MaxSections = 4

	// HeadingMergeThreshold is the heading Jaccard similarity at which two
	// sections are folded into one.
	HeadingMergeThreshold = 0.5
)

// Score ranks a section for merging and backfill: query relevance of the
// heading and body, weighted by the model's confidence.
func Score(query string, s research.ReportSection) float64 {
	return research.Relevance(query, s.Heading+" "+s.Body) * (0.5 + s.Confidence/2)
}

// Merge folds sections with similar headings together and keeps at most
// MaxSections. Sections pushed out go to reserve, best first. Kept sections
// come back in sub-query order. Merged bodies are clamped to budget.
//
// Ties keep the lower sub-query index, both when picking the surviving
// heading of a merge and when choosing what to keep.
func Merge(query string, sections []research.ReportSection, budget int) (kept, reserve []research.ReportSection) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	in := slices.Clone(sections)
	for i := range in {
		in[i].Score = Score(query, in[i])
	}
	slices.SortStableFunc(in, bySubQuery)

	for _, s := range in {
		j := slices.IndexFunc(kept, func(k research.ReportSection) bool {
			return research.Jaccard(k.Heading, s.Heading) >= HeadingMergeThreshold
		})
		if j < 0 {
			kept = append(kept, s)
			continue
		}
		kept[j] = fold(query, kept[j], s, budget)
	}

	for len(kept) > MaxSections {
		worst := 0
		for i, k := range kept {
			w := kept[worst]
			if k.Score < w.Score || (k.Score == w.Score && k.SubQueryIndex > w.SubQueryIndex) {
				worst = i
			}
		}
		reserve = append(reserve, kept[worst])
		kept = slices.Delete(kept, worst, worst+1)
	}

	slices.SortStableFunc(kept, bySubQuery)
	slices.SortStableFunc(reserve, func(a, b research.ReportSection) int {
		return cmp.Or(cmp.Compare(b.Score, a.Score), bySubQuery(a, b))
	})
	return kept, reserve
}

// fold merges b into a. The higher-scored section keeps its heading,
// index and confidence; a wins ties since it has the lower index.
func fold(query string, a, b research.ReportSection, budget int) research.ReportSection {
	winner, loser := a, b
	if b.Score > a.Score {
		winner, loser = b, a
	}
	merged := winner
	merged.Body = chunker.CutAtWord(winner.Body+"\n\n"+loser.Body, budget)
	merged.Citations = lo.UniqBy(append(slices.Clone(winner.Citations), loser.Citations...),
		func(c research.Citation) string { return c.URL })
	merged.KeyFindings = lo.Uniq(append(slices.Clone(winner.KeyFindings), loser.KeyFindings...))
	merged.Evidence = lo.Uniq(append(slices.Clone(winner.Evidence), loser.Evidence...))
	merged.Score = Score(query, merged)
	return merged
}

func bySubQuery(a, b research.ReportSection) int {
	return cmp.Compare(a.SubQueryIndex, b.SubQueryIndex)
}
