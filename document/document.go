// Package document models the observed page as a mutable HTML tree, and
// provides the change feed, debouncing and page watching around it.
package document

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is the current page: a parsed tree plus the navigable location.
// All tree access goes through Read or Mutate so the page watcher and
// overlapping sweeps never touch the tree at the same time.
type Document struct {
	mu       sync.RWMutex
	root     *html.Node
	location string
}

// New wraps an already parsed tree
func New(location string, root *html.Node) *Document {
	if root == nil {
		root = &html.Node{Type: html.DocumentNode}
	}
	return &Document{root: root, location: location}
}

// Parse builds a document from markup
func Parse(location string, r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return New(location, root), nil
}

// ParseString is Parse for in-memory markup
func ParseString(location, markup string) (*Document, error) {
	return Parse(location, strings.NewReader(markup))
}

// Location returns the current navigable location
func (d *Document) Location() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.location
}

// SetLocation records an in-page navigation without replacing the tree
func (d *Document) SetLocation(location string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.location = location
}

// Title returns the text of the <title> element
func (d *Document) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := FindFirst(d.root, func(n *html.Node) bool { return n.DataAtom == atom.Title })
	return Text(n)
}

// Read runs fn with shared access to the tree
func (d *Document) Read(fn func(root *html.Node)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.root)
}

// Mutate runs fn with exclusive access to the tree
func (d *Document) Mutate(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// Replace swaps in a freshly rendered tree, as a re-render of the page does
func (d *Document) Replace(location string, root *html.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root = root
	d.location = location
}

// Attached reports whether n is still part of the current tree
func (d *Document) Attached(n *html.Node) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return n != nil && Contains(d.root, n)
}

// Render serializes the current tree
func (d *Document) Render() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", err
	}
	return buf.String(), nil
}
