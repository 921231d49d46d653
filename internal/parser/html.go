package parser

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/dgallion1/reportgest/internal/doctree"
	"golang.org/x/net/html"
)

// HTMLParser extracts the main content block of a web page: boilerplate
// elements are dropped, the densest text container wins, and its HTML is
// converted to Markdown before being built into a tree.
type HTMLParser struct{}

// minMainWords is how much paragraph text an <article> or <main> must hold
// to be taken as-is without scoring.
const minMainWords = 80

var boilerplateTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "nav": true, "footer": true,
	"header": true, "aside": true, "form": true, "iframe": true, "svg": true,
	"button": true, "select": true, "template": true, "figure": true,
}

var boilerplateAttr = regexp.MustCompile(`(?i)\b(comment|sidebar|cookie|consent|banner|menu|share|social|related|advert|promo|subscribe|newsletter|breadcrumb|popup|modal|footer|nav)`)

var contentTags = map[string]bool{
	"p": true, "li": true, "pre": true, "blockquote": true, "td": true, "dd": true,
}

func (p *HTMLParser) Parse(r io.Reader, name string) (*doctree.DocTree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := findTitle(doc)
	if title == "" {
		title = baseTitle(name)
	}

	body := findElement(doc, "body")
	if body == nil {
		body = doc
	}
	stripBoilerplate(body)

	main := mainContent(body)
	var buf bytes.Buffer
	if err := html.Render(&buf, main); err != nil {
		return nil, fmt.Errorf("render main content: %w", err)
	}
	markdown, err := md.NewConverter("", true, nil).ConvertString(buf.String())
	if err != nil {
		return nil, fmt.Errorf("convert html to markdown: %w", err)
	}

	return (&MarkdownParser{Title: title}).Parse(strings.NewReader(markdown), name)
}

// stripBoilerplate removes non-content subtrees in place.
func stripBoilerplate(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode:
			n.RemoveChild(c)
		case c.Type == html.ElementNode && isBoilerplate(c):
			n.RemoveChild(c)
		default:
			stripBoilerplate(c)
		}
		c = next
	}
}

func isBoilerplate(n *html.Node) bool {
	if boilerplateTags[n.Data] {
		return true
	}
	if attr(n, "aria-hidden") == "true" || hasAttr(n, "hidden") {
		return true
	}
	switch attr(n, "role") {
	case "navigation", "banner", "contentinfo", "complementary", "dialog":
		return true
	}
	// Content containers are never dropped on class name alone.
	if n.Data == "article" || n.Data == "main" || n.Data == "body" {
		return false
	}
	return boilerplateAttr.MatchString(attr(n, "class") + " " + attr(n, "id"))
}

// mainContent picks the node holding the page's main text. An <article> or
// <main> with enough text wins outright; otherwise each content element
// credits its parent fully and its grandparent by half, scores are
// discounted by link density, and the highest-scoring container wins.
func mainContent(body *html.Node) *html.Node {
	for _, tag := range []string{"article", "main"} {
		if n := findElement(body, tag); n != nil && contentWords(n) >= minMainWords {
			return n
		}
	}
	if n := findByRole(body, "main"); n != nil && contentWords(n) >= minMainWords {
		return n
	}

	scores := make(map[*html.Node]float64)
	var order []*html.Node
	credit := func(n *html.Node, words float64) {
		if _, seen := scores[n]; !seen {
			order = append(order, n)
		}
		scores[n] += words
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && contentTags[n.Data] {
			words := float64(len(strings.Fields(textContent(n))))
			if parent := n.Parent; parent != nil {
				credit(parent, words)
				if gp := parent.Parent; gp != nil {
					credit(gp, words/2)
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)

	best, bestScore := body, 0.0
	for _, n := range order {
		s := scores[n] * (1 - linkDensity(n))
		if s > bestScore {
			best, bestScore = n, s
		}
	}
	return best
}

// contentWords counts words inside content elements under n.
func contentWords(n *html.Node) int {
	total := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && contentTags[n.Data] {
			total += len(strings.Fields(textContent(n)))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return total
}

// linkDensity is the share of n's text that sits inside anchors.
func linkDensity(n *html.Node) float64 {
	all := len(textContent(n))
	if all == 0 {
		return 0
	}
	linked := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			linked += len(textContent(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return float64(linked) / float64(all)
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

// findTitle prefers og:title, then <title>, then the first <h1>.
func findTitle(doc *html.Node) string {
	var og string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "meta" && attr(n, "property") == "og:title" {
			og = strings.TrimSpace(attr(n, "content"))
			return og != ""
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	if walk(doc); og != "" {
		return og
	}
	if t := findElement(doc, "title"); t != nil {
		if s := strings.Join(strings.Fields(textContent(t)), " "); s != "" {
			return s
		}
	}
	if h := findElement(doc, "h1"); h != nil {
		return strings.Join(strings.Fields(textContent(h)), " ")
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findElement(c, tag); f != nil {
			return f
		}
	}
	return nil
}

func findByRole(n *html.Node, role string) *html.Node {
	if n.Type == html.ElementNode && attr(n, "role") == role {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findByRole(c, role); f != nil {
			return f
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
