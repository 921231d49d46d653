package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/reportgest/internal/doctree"
)

// Config controls passage splitting.
type Config struct {
	PassageWords int // Target passage size in words.
	MinWords     int // Passages shorter than this are dropped.
}

// DefaultConfig returns sizes suited to packing a few thousand characters
// of context.
func DefaultConfig() Config {
	return Config{
		PassageWords: 80,
		MinWords:     8,
	}
}

// Split walks a DocTree and produces passages in document order. Passages
// never span sections, so each keeps an accurate breadcrumb.
func Split(tree *doctree.DocTree, cfg Config) []doctree.Passage {
	if cfg.PassageWords <= 0 {
		cfg.PassageWords = 80
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = 8
	}

	var out []doctree.Passage
	for _, child := range tree.Children {
		walkNode(child, nil, cfg, &out)
	}
	return out
}

func walkNode(node *doctree.DocNode, breadcrumb []string, cfg Config, out *[]doctree.Passage) {
	bc := append([]string(nil), breadcrumb...)
	if node.Title != "" {
		bc = append(bc, node.Title)
	}

	if node.Text != "" {
		for _, part := range splitText(node.Text, cfg.PassageWords) {
			if wordCount(part) < cfg.MinWords {
				continue
			}
			*out = append(*out, doctree.Passage{
				Text:       part,
				Index:      len(*out),
				Breadcrumb: copyBreadcrumb(bc),
				Page:       node.Page,
			})
		}
	}

	for _, child := range node.Children {
		walkNode(child, bc, cfg, out)
	}
}

// splitText groups paragraphs into passages of about target words. A
// paragraph longer than target is split at sentence boundaries.
func splitText(text string, target int) []string {
	var result []string
	var current []string
	currentWords := 0
	flush := func() {
		if len(current) > 0 {
			result = append(result, strings.Join(current, "\n\n"))
			current, currentWords = nil, 0
		}
	}

	for _, para := range splitByParagraphs(text) {
		n := wordCount(para)
		if n > target {
			flush()
			result = append(result, splitBySentences(para, target)...)
			continue
		}
		if currentWords+n > target {
			flush()
		}
		current = append(current, para)
		currentWords += n
	}
	flush()
	return result
}

// splitByParagraphs splits on double-newlines.
func splitByParagraphs(text string) []string {
	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitBySentences packs sentences into groups of about target words. A
// single sentence over target is hard-split on words.
func splitBySentences(text string, target int) []string {
	var result []string
	var current []string
	currentWords := 0
	for _, sent := range SplitSentences(text) {
		n := wordCount(sent)
		if currentWords+n > target && currentWords > 0 {
			result = append(result, strings.Join(current, " "))
			current, currentWords = nil, 0
		}
		if n > target {
			words := strings.Fields(sent)
			for len(words) > target {
				result = append(result, strings.Join(words[:target], " "))
				words = words[target:]
			}
			sent, n = strings.Join(words, " "), len(words)
		}
		current = append(current, sent)
		currentWords += n
	}
	if currentWords > 0 {
		result = append(result, strings.Join(current, " "))
	}
	return result
}

// SplitSentences splits text after '.', '!' or '?' followed by whitespace.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i, r := range runes {
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// TruncateWords keeps the first n words of text, preserving paragraph
// breaks between the words it keeps.
func TruncateWords(text string, n int) string {
	var paras []string
	left := n
	for _, p := range splitByParagraphs(text) {
		if left <= 0 {
			break
		}
		words := strings.Fields(p)
		if len(words) > left {
			words = words[:left]
		}
		left -= len(words)
		paras = append(paras, strings.Join(words, " "))
	}
	return strings.Join(paras, "\n\n")
}

// CutAtWord returns the longest prefix of text no longer than max bytes
// that ends on a word boundary. It never splits a rune.
func CutAtWord(text string, max int) string {
	if len(text) <= max {
		return text
	}
	if max <= 0 {
		return ""
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	cut := text[:max]
	if next, _ := utf8.DecodeRuneInString(text[max:]); !unicode.IsSpace(next) {
		if i := strings.LastIndexFunc(cut, unicode.IsSpace); i >= 0 {
			cut = cut[:i]
		} else {
			return ""
		}
	}
	return strings.TrimRightFunc(cut, unicode.IsSpace)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func copyBreadcrumb(bc []string) []string {
	if len(bc) == 0 {
		return nil
	}
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
