package doctree

import "strings"

// DocTree is the root of a parsed source document.
type DocTree struct {
	Title    string     // Page title (from metadata or the URL)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Paragraphs of this node, blank-line separated
	Page     int        // Source page (0 if N/A)
	Children []*DocNode // Subsections
}

// Passage is a short run of text with its heading context, the unit the
// synthesizer ranks and packs.
type Passage struct {
	Text       string   // Passage text
	Index      int      // Sequence number within the document
	Breadcrumb []string // Heading hierarchy, e.g. ["Benefits", "Focus time"]
	Page       int
}

// PlainText flattens the tree into headings and paragraphs in document order.
func (t *DocTree) PlainText() string {
	var parts []string
	var walk func(nodes []*DocNode)
	walk = func(nodes []*DocNode) {
		for _, n := range nodes {
			if h := strings.TrimSpace(n.Title); h != "" {
				parts = append(parts, h)
			}
			if tx := strings.TrimSpace(n.Text); tx != "" {
				parts = append(parts, tx)
			}
			walk(n.Children)
		}
	}
	walk(t.Children)
	return strings.Join(parts, "\n\n")
}

// Builder assembles a tree from a flat stream of headings and paragraphs,
// nesting each heading under the nearest shallower one.
type Builder struct {
	root    *DocNode
	stack   []entry
	pending strings.Builder
}

type entry struct {
	node  *DocNode
	level int
}

func NewBuilder(title string) *Builder {
	root := &DocNode{Title: title}
	return &Builder{root: root, stack: []entry{{node: root}}}
}

// Heading opens a section at level (1 = top).
func (b *Builder) Heading(level int, title string) {
	b.flush()
	n := &DocNode{Title: title}
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, n)
	b.stack = append(b.stack, entry{node: n, level: level})
}

// Paragraph appends text to the current section. Blank text is ignored.
func (b *Builder) Paragraph(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if b.pending.Len() > 0 {
		b.pending.WriteString("\n\n")
	}
	b.pending.WriteString(text)
}

func (b *Builder) flush() {
	t := strings.TrimSpace(b.pending.String())
	b.pending.Reset()
	if t == "" {
		return
	}
	top := b.stack[len(b.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// Tree finishes the document. Text that appeared before any heading becomes
// a leading untitled node.
func (b *Builder) Tree() *DocTree {
	b.flush()
	tree := &DocTree{Title: b.root.Title, Children: b.root.Children}
	if b.root.Text != "" {
		lead := &DocNode{Text: b.root.Text}
		tree.Children = append([]*DocNode{lead}, tree.Children...)
	}
	return tree
}
