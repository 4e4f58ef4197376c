// internal/browser/dom/node.go
package dom

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// voidElements cannot have children; html.Render refuses to serialize them
// if they do.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true,
	"track": true, "wbr": true,
}

// IsVoid reports whether n is an element that may not contain children.
func IsVoid(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && voidElements[strings.ToLower(n.Data)]
}

// IsElement reports whether n is an element and, when tags are given, whether
// it is one of them.
func IsElement(n *html.Node, tags ...string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	name := strings.ToLower(n.Data)
	for _, t := range tags {
		if name == t {
			return true
		}
	}
	return false
}

// Attr returns the value of key on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether the attribute is present at all.
func HasAttr(n *html.Node, key string) bool {
	_, ok := Attr(n, key)
	return ok
}

// SetAttr sets or replaces an attribute.
func SetAttr(n *html.Node, key, val string) {
	key = strings.ToLower(key)
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute if present and reports whether it was.
func RemoveAttr(n *html.Node, key string) bool {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return true
		}
	}
	return false
}

// NewElement creates a detached element.
func NewElement(tag string, attrs ...html.Attribute) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

// Clone deep-copies n and its subtree. The copy is detached.
func Clone(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

// Detach removes n from its parent, if it has one.
func Detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// InsertAfter places n immediately after ref.
func InsertAfter(n, ref *html.Node) {
	if ref.Parent == nil {
		return
	}
	ref.Parent.InsertBefore(n, ref.NextSibling)
}

// Contains reports whether n is ancestor or ancestor's descendant.
func Contains(ancestor, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the node's subtree.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		// Capture next first so fn may detach c.
		next := c.NextSibling
		Walk(c, fn)
		c = next
	}
}

// FindAll collects every node in the subtree for which match returns true.
func FindAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var found []*html.Node
	Walk(root, func(n *html.Node) bool {
		if match(n) {
			found = append(found, n)
		}
		return true
	})
	return found
}

// TextContent concatenates the text of every descendant text node, minus
// anything skip excludes.
func TextContent(n *html.Node, skip func(*html.Node) bool) string {
	var b strings.Builder
	Walk(n, func(c *html.Node) bool {
		if skip != nil && c != n && skip(c) {
			return false
		}
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// SetText replaces every child of n with a single text node, preserving the
// children keep selects.
func SetText(n *html.Node, text string, keep func(*html.Node) bool) {
	var kept []*html.Node
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		if keep != nil && keep(c) {
			kept = append(kept, c)
		}
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	for _, k := range kept {
		n.AppendChild(k)
	}
}

// Parse reads a complete document.
func Parse(document string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	return doc, nil
}

// Render serializes a node and its subtree.
func Render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("rendering document: %w", err)
	}
	return buf.String(), nil
}

// Body returns the document's body element.
func Body(doc *html.Node) *html.Node {
	return htmlquery.FindOne(doc, "//body")
}

// Head returns the document's head element.
func Head(doc *html.Node) *html.Node {
	return htmlquery.FindOne(doc, "//head")
}
