// internal/browser/dom/path.go
package dom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ErrNoMatch is returned by Query when a well-formed selector matches nothing.
var ErrNoMatch = errors.New("dom: selector matched nothing")

// XPath builds an absolute XPath for n, anchored at the nearest ancestor with
// an id.
func XPath(n *html.Node) string {
	if n == nil {
		return ""
	}
	var path []string
	for ; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(n.Data)
		if id := htmlquery.SelectAttr(n, "id"); id != "" && !strings.Contains(id, "'") {
			path = append(path, fmt.Sprintf(`//*[@id='%s']`, id))
			break
		}
		path = append(path, fmt.Sprintf("%s[%d]", tag, sameTagIndex(n)))
	}
	if len(path) == 0 {
		return "/"
	}
	reverse(path)
	p := strings.Join(path, "/")
	if !strings.HasPrefix(p, "//") {
		p = "/" + p
	}
	return p
}

// CSSPath builds a CSS selector for n: an id anchor when one exists, then
// child steps with :nth-of-type.
func CSSPath(n *html.Node) string {
	var path []string
	for ; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if id, ok := Attr(n, "id"); ok && id != "" {
			path = append(path, `[id="`+strings.ReplaceAll(id, `"`, `\"`)+`"]`)
			break
		}
		tag := strings.ToLower(n.Data)
		if n.Parent == nil || n.Parent.Type == html.DocumentNode {
			path = append(path, tag)
			continue
		}
		path = append(path, tag+":nth-of-type("+strconv.Itoa(sameTagIndex(n))+")")
	}
	reverse(path)
	return strings.Join(path, " > ")
}

// Query resolves selector against doc. Selectors starting with "/" or "(" are
// XPath; anything else is CSS.
func Query(doc *html.Node, selector string) (*html.Node, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, fmt.Errorf("dom: empty selector")
	}
	var n *html.Node
	if strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(") {
		found, err := htmlquery.Query(doc, selector)
		if err != nil {
			return nil, fmt.Errorf("dom: invalid xpath %q: %w", selector, err)
		}
		n = found
	} else {
		sel, err := cascadia.Compile(selector)
		if err != nil {
			return nil, fmt.Errorf("dom: invalid css selector %q: %w", selector, err)
		}
		n = sel.MatchFirst(doc)
	}
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, selector)
	}
	return n, nil
}

// sameTagIndex is n's 1-based position among element siblings sharing its tag.
func sameTagIndex(n *html.Node) int {
	tag := strings.ToLower(n.Data)
	index := 1
	for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
		if prev.Type == html.ElementNode && strings.ToLower(prev.Data) == tag {
			index++
		}
	}
	return index
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
