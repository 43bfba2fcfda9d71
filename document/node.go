package document

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Matcher decides whether a node belongs to a lookup
type Matcher func(n *html.Node) bool

// Attr returns the value of the attribute key and whether it is present
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces an attribute
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute if present
func RemoveAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

// Text returns the visible text under n with whitespace collapsed
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
			return
		}
		if c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Style) {
			return
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// SetText replaces all children of n with a single text node
func SetText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// FindAll returns every node under root (inclusive) that matches, in
// document order
func FindAll(root *html.Node, match Matcher) []*html.Node {
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			found = append(found, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return found
}

// FindFirst returns the first match under root or nil
func FindFirst(root *html.Node, match Matcher) *html.Node {
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && match(n) {
			found = n
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	if root != nil {
		walk(root)
	}
	return found
}

// Closest walks up from n (exclusive) and returns the first matching
// ancestor, giving up after maxDepth levels
func Closest(n *html.Node, match Matcher, maxDepth int) *html.Node {
	depth := 0
	for p := n.Parent; p != nil && depth < maxDepth; p = p.Parent {
		if p.Type == html.ElementNode && match(p) {
			return p
		}
		depth++
	}
	return nil
}

// Contains reports whether n is root or a descendant of root
func Contains(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// Detach removes n from its parent, if any
func Detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// ByTag matches elements with the given tag name
func ByTag(tag string) Matcher {
	return func(n *html.Node) bool {
		return n.Data == tag
	}
}

// ByAttr matches elements whose attribute equals val
func ByAttr(key, val string) Matcher {
	return func(n *html.Node) bool {
		v, ok := Attr(n, key)
		return ok && v == val
	}
}

// HasAttr matches elements carrying the attribute at all
func HasAttr(key string) Matcher {
	return func(n *html.Node) bool {
		_, ok := Attr(n, key)
		return ok
	}
}

// ByAttrContains matches elements whose attribute contains substr
func ByAttrContains(key, substr string) Matcher {
	return func(n *html.Node) bool {
		v, ok := Attr(n, key)
		return ok && strings.Contains(v, substr)
	}
}

// ByClass matches elements that list class among their classes
func ByClass(class string) Matcher {
	return func(n *html.Node) bool {
		v, ok := Attr(n, "class")
		if !ok {
			return false
		}
		for _, c := range strings.Fields(v) {
			if c == class {
				return true
			}
		}
		return false
	}
}

// And matches when every matcher matches
func And(matchers ...Matcher) Matcher {
	return func(n *html.Node) bool {
		for _, m := range matchers {
			if !m(n) {
				return false
			}
		}
		return true
	}
}

// Or matches when any matcher matches
func Or(matchers ...Matcher) Matcher {
	return func(n *html.Node) bool {
		for _, m := range matchers {
			if m(n) {
				return true
			}
		}
		return false
	}
}

// Within restricts inner to nodes that have an ancestor matching outer,
// the equivalent of the descendant combinator "outer inner"
func Within(outer, inner Matcher) Matcher {
	return func(n *html.Node) bool {
		if !inner(n) {
			return false
		}
		return Closest(n, outer, 1<<30) != nil
	}
}

// IsHeading matches h1-h6 and role=heading elements
func IsHeading(n *html.Node) bool {
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	role, _ := Attr(n, "role")
	return role == "heading"
}
