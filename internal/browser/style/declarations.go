// internal/browser/style/declarations.go
package style

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// Declaration is one property of an inline style attribute.
type Declaration struct {
	Property  string
	Value     string
	Important bool
}

// Declarations is an inline style in source order. Property names are
// lower-cased and unique.
type Declarations []Declaration

// ParseInline reads a style attribute value. Malformed input yields whatever
// declarations could be recovered.
func ParseInline(styleAttr string) Declarations {
	decls, err := parseDeclarations(styleAttr)
	if err != nil {
		return nil
	}
	var out Declarations
	for _, d := range decls {
		out.Set(d.Property, d.Value)
		if d.Important {
			out[out.index(strings.ToLower(strings.TrimSpace(d.Property)))].Important = true
		}
	}
	return out
}

// parseDeclarations terminates the final declaration, which the parser
// otherwise leaves without a value.
func parseDeclarations(text string) ([]*css.Declaration, error) {
	text = strings.TrimSpace(text)
	if text != "" && !strings.HasSuffix(text, ";") {
		text += ";"
	}
	return parser.ParseDeclarations(text)
}

func (d Declarations) index(prop string) int {
	for i, decl := range d {
		if decl.Property == prop {
			return i
		}
	}
	return -1
}

// Get returns a property's value.
func (d Declarations) Get(prop string) (string, bool) {
	if i := d.index(strings.ToLower(strings.TrimSpace(prop))); i >= 0 {
		return d[i].Value, true
	}
	return "", false
}

// Set replaces a property in place or appends it. An empty value removes it.
func (d *Declarations) Set(prop, value string) {
	prop = strings.ToLower(strings.TrimSpace(prop))
	value = strings.TrimSpace(value)
	if prop == "" {
		return
	}
	i := d.index(prop)
	switch {
	case value == "" && i >= 0:
		*d = append((*d)[:i], (*d)[i+1:]...)
	case value == "":
	case i >= 0:
		(*d)[i].Value = value
		(*d)[i].Important = false
	default:
		*d = append(*d, Declaration{Property: prop, Value: value})
	}
}

// Delete removes a property.
func (d *Declarations) Delete(prop string) {
	d.Set(prop, "")
}

// String serializes the declarations as a style attribute value.
func (d Declarations) String() string {
	var b strings.Builder
	for i, decl := range d {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(decl.Property)
		b.WriteString(": ")
		b.WriteString(decl.Value)
		if decl.Important {
			b.WriteString(" !important")
		}
		b.WriteByte(';')
	}
	return b.String()
}

// Inline reads n's style attribute.
func Inline(n *html.Node) Declarations {
	v, _ := attr(n, "style")
	return ParseInline(v)
}

// SetInline writes d back to n, removing the attribute when d is empty.
func SetInline(n *html.Node, d Declarations) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, "style") {
			if len(d) == 0 {
				n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
				return
			}
			n.Attr[i].Val = d.String()
			return
		}
	}
	if len(d) > 0 {
		n.Attr = append(n.Attr, html.Attribute{Key: "style", Val: d.String()})
	}
}

// ErrInvalidDeclaration marks a property or value that would escape its
// declaration.
var ErrInvalidDeclaration = errors.New("invalid style declaration")

// Merge applies props to n's inline style. Keys may be CSS property names or
// their camelCase script forms. Invalid entries are skipped and reported
// together; the valid ones are still applied.
func Merge(n *html.Node, props map[string]string) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	// Appended properties land in a stable order.
	sort.Strings(keys)

	var errs []error
	d := Inline(n)
	for _, k := range keys {
		name, value := PropertyName(k), props[k]
		if !validProperty(name) || strings.ContainsAny(value, ";{}") {
			errs = append(errs, fmt.Errorf("%q: %w", k, ErrInvalidDeclaration))
			continue
		}
		d.Set(name, value)
	}
	SetInline(n, d)
	return errors.Join(errs...)
}

// validProperty accepts identifiers and custom properties.
func validProperty(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '-' || r == '_' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// PropertyName converts a camelCase script property (backgroundColor) to its
// CSS name (background-color). CSS names pass through unchanged.
func PropertyName(key string) string {
	if strings.Contains(key, "-") {
		return strings.ToLower(key)
	}
	var b strings.Builder
	for _, r := range key {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('-')
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
