// internal/browser/style/style.go
package style

import (
	"fmt"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// -- Constants and Configuration --

const (
	BaseFontSize = 16.0 // Default root font size.
)

// DefaultUserAgentCSS carries the defaults the editor's resolved values depend on.
const DefaultUserAgentCSS = `
div, p, h1, h2, h3, h4, h5, h6, body, html, ul, ol, form, header, footer, section, article, nav, main, figure, blockquote {
    display: block;
}
li { display: list-item; }
table { display: table; }
tr { display: table-row; }
td, th { display: table-cell; }
head, script, style, template, title, meta, link { display: none; }
img, input, button, textarea, select { display: inline-block; }
body { margin: 8px; }

h1 { font-size: 2em; font-weight: bold; }
h2 { font-size: 1.5em; font-weight: bold; }
h3 { font-size: 1.17em; font-weight: bold; }
h4 { font-weight: bold; }
h5 { font-size: 0.83em; font-weight: bold; }
h6 { font-size: 0.67em; font-weight: bold; }
b, strong, th { font-weight: bold; }
small { font-size: smaller; }
a { color: #0000EE; }
`

// inheritable lists the properties children take from their parent when
// nothing in the cascade sets them.
var inheritable = map[string]bool{
	"color": true, "font-family": true, "font-size": true, "font-weight": true,
	"line-height": true, "text-align": true, "visibility": true, "cursor": true,
}

// rootDefaults seed the initial values of the inherited properties.
var rootDefaults = map[string]string{
	"color":       "rgb(0, 0, 0)",
	"font-size":   "16px",
	"font-weight": "400",
	"text-align":  "start",
}

// -- Style Engine --

type StyleOrigin int

const (
	OriginUserAgent StyleOrigin = iota
	OriginAuthor
	OriginInline
)

// rule is one qualified rule whose selectors compiled.
type rule struct {
	selectors    cascadia.SelectorGroup
	declarations []*css.Declaration
}

// Engine holds the user-agent sheet. It is immutable after construction and
// safe to share.
type Engine struct {
	logger    *zap.Logger
	userAgent []rule
}

// NewEngine parses the user-agent sheet.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{logger: logger.Named("style")}
	rules, err := e.compileSheet(DefaultUserAgentCSS)
	if err != nil {
		// The built-in sheet is a constant; it parsing badly is a programming error.
		panic(fmt.Sprintf("style: user agent sheet: %v", err))
	}
	e.userAgent = rules
	return e
}

func (e *Engine) compileSheet(text string) ([]rule, error) {
	sheet, err := parser.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing stylesheet: %w", err)
	}
	var out []rule
	for _, r := range sheet.Rules {
		if r.Kind != css.QualifiedRule {
			// At-rules (media queries, font faces) never apply without a viewport.
			continue
		}
		group, err := cascadia.ParseGroup(strings.Join(r.Selectors, ", "))
		if err != nil {
			e.logger.Debug("Skipping rule with unsupported selector.",
				zap.Strings("selectors", r.Selectors), zap.Error(err))
			continue
		}
		out = append(out, rule{selectors: group, declarations: r.Declarations})
	}
	return out, nil
}

// Resolver computes resolved values for elements of one document. Build a new
// one whenever the document's style sheets may have changed.
type Resolver struct {
	engine *Engine
	author []rule
	cache  map[*html.Node]Computed
}

// ForDocument collects every <style> sheet in doc. Broken sheets are logged
// and skipped.
func (e *Engine) ForDocument(doc *html.Node) *Resolver {
	r := &Resolver{engine: e, cache: make(map[*html.Node]Computed)}
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "style") {
			var text strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					text.WriteString(c.Data)
				}
			}
			rules, err := e.compileSheet(text.String())
			if err != nil {
				e.logger.Debug("Skipping unparseable style sheet.", zap.Error(err))
			} else {
				r.author = append(r.author, rules...)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	if doc != nil {
		visit(doc)
	}
	return r
}

// Computed is the resolved value of every property that is set on, or
// inherited by, an element.
type Computed map[string]string

// Lookup returns the resolved property or the fallback.
func (c Computed) Lookup(property, fallback string) string {
	if v, ok := c[property]; ok {
		return v
	}
	return fallback
}

type declarationWithContext struct {
	declaration *css.Declaration
	specificity cascadia.Specificity
	origin      StyleOrigin
	order       int
}

// Compute resolves n's values: the cascade over the user-agent sheet, author
// sheets and the inline style, then inheritance from n's ancestors.
func (r *Resolver) Compute(n *html.Node) Computed {
	if n == nil || n.Type != html.ElementNode {
		out := make(Computed, len(rootDefaults))
		for k, v := range rootDefaults {
			out[k] = v
		}
		return out
	}
	if c, ok := r.cache[n]; ok {
		return c
	}

	parent := r.Compute(elementParent(n))
	own := r.cascade(n)

	computed := make(Computed, len(own)+len(inheritable))
	for prop, val := range own {
		if val == "inherit" {
			if pv, ok := parent[prop]; ok {
				computed[prop] = pv
			}
			continue
		}
		computed[prop] = val
	}
	for prop := range inheritable {
		if _, exists := computed[prop]; !exists {
			if pv, ok := parent[prop]; ok {
				computed[prop] = pv
			}
		}
	}
	resolveRelativeValues(computed, parent)

	r.cache[n] = computed
	return computed
}

func (r *Resolver) cascade(node *html.Node) map[string]string {
	var declarations []declarationWithContext
	order := 0

	processRules := func(rules []rule, origin StyleOrigin) {
		for _, rl := range rules {
			spec, ok := matchSpecificity(node, rl.selectors)
			if !ok {
				continue
			}
			for _, decl := range rl.declarations {
				declarations = append(declarations, declarationWithContext{
					declaration: decl,
					specificity: spec,
					origin:      origin,
					order:       order,
				})
				order++
			}
		}
	}

	processRules(r.engine.userAgent, OriginUserAgent)
	processRules(r.author, OriginAuthor)

	if styleAttr, ok := attr(node, "style"); ok {
		for _, decl := range parseInlineStyles(styleAttr) {
			declarations = append(declarations, declarationWithContext{
				declaration: decl,
				specificity: cascadia.Specificity{1, 0, 0},
				origin:      OriginInline,
				order:       order,
			})
			order++
		}
	}

	sort.SliceStable(declarations, func(i, j int) bool {
		d1, d2 := declarations[i], declarations[j]
		p1, p2 := calculateCascadePriority(d1), calculateCascadePriority(d2)
		if p1 != p2 {
			return p1 < p2
		}
		if d1.specificity != d2.specificity {
			return d1.specificity.Less(d2.specificity)
		}
		return d1.order < d2.order
	})

	styles := make(map[string]string)
	for _, d := range declarations {
		styles[strings.ToLower(d.declaration.Property)] = strings.TrimSpace(d.declaration.Value)
	}
	expandShorthands(styles)
	return styles
}

// matchSpecificity reports whether any selector in the group matches, and the
// highest specificity among those that do.
func matchSpecificity(n *html.Node, group cascadia.SelectorGroup) (cascadia.Specificity, bool) {
	var best cascadia.Specificity
	matched := false
	for _, sel := range group {
		if sel.PseudoElement() != "" || !sel.Match(n) {
			continue
		}
		spec := sel.Specificity()
		if !matched || best.Less(spec) {
			best = spec
		}
		matched = true
	}
	return best, matched
}

func calculateCascadePriority(d declarationWithContext) int {
	isImportant := d.declaration.Important
	switch d.origin {
	case OriginUserAgent:
		if isImportant {
			return 5
		}
		return 1
	case OriginAuthor:
		if isImportant {
			return 4
		}
		return 2
	case OriginInline:
		if isImportant {
			return 4
		}
		return 3
	}
	return 0
}

func parseInlineStyles(styleAttr string) []*css.Declaration {
	decls, err := parseDeclarations(styleAttr)
	if err != nil {
		return nil
	}
	return decls
}

func resolveRelativeValues(computed, parent Computed) {
	parentFontSize := ParseAbsoluteLength(parent.Lookup("font-size", "16px"))
	if parentFontSize <= 0 {
		parentFontSize = BaseFontSize
	}

	if fs, ok := computed["font-size"]; ok {
		var size float64
		switch fs {
		case "smaller":
			size = parentFontSize / 1.2
		case "larger":
			size = parentFontSize * 1.2
		default:
			size = ParseLengthWithUnits(fs, parentFontSize, BaseFontSize, parentFontSize)
		}
		computed["font-size"] = FormatPx(size)
	}
	if fw, ok := computed["font-weight"]; ok {
		computed["font-weight"] = normalizeFontWeight(fw, parent.Lookup("font-weight", "400"))
	}
	if c, ok := computed["color"]; ok {
		if parsed, ok := ParseColor(c); ok {
			computed["color"] = FormatColor(parsed)
		}
	}
	if bg, ok := computed["background-color"]; ok {
		if parsed, ok := ParseColor(bg); ok {
			computed["background-color"] = FormatColor(parsed)
		}
	}
}

func normalizeFontWeight(value, parent string) string {
	switch strings.ToLower(value) {
	case "normal":
		return "400"
	case "bold":
		return "700"
	case "bolder":
		if ParseAbsoluteLength(parent) < 700 {
			return "700"
		}
		return "900"
	case "lighter":
		if ParseAbsoluteLength(parent) > 500 {
			return "400"
		}
		return "100"
	}
	return value
}

func elementParent(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// -- Shorthand expansion --

func expandShorthands(styles map[string]string) {
	expand1To4Shorthand(styles, "margin", "margin-top", "margin-right", "margin-bottom", "margin-left")
	expand1To4Shorthand(styles, "padding", "padding-top", "padding-right", "padding-bottom", "padding-left")
	expand1To4Shorthand(styles, "border-width", "border-top-width", "border-right-width", "border-bottom-width", "border-left-width")
	expand1To4Shorthand(styles, "border-radius", "border-top-left-radius", "border-top-right-radius", "border-bottom-right-radius", "border-bottom-left-radius")

	if borderVal, ok := styles["border"]; ok {
		width, styleVal, color := "medium", "none", ""
		for _, part := range strings.Fields(borderVal) {
			switch {
			case part == "solid" || part == "dashed" || part == "dotted" || part == "double" || part == "none" || part == "hidden":
				styleVal = part
			case part == "thin" || part == "medium" || part == "thick" || (part[0] >= '0' && part[0] <= '9') || part[0] == '.':
				width = part
			default:
				if _, ok := ParseColor(part); ok {
					color = part
				}
			}
		}
		for _, side := range []string{"top", "right", "bottom", "left"} {
			setIfAbsent(styles, "border-"+side+"-width", width)
			setIfAbsent(styles, "border-"+side+"-style", styleVal)
			if color != "" {
				setIfAbsent(styles, "border-"+side+"-color", color)
			}
		}
	}

	if bg, ok := styles["background"]; ok {
		if _, set := styles["background-color"]; !set {
			for _, part := range strings.Fields(bg) {
				if _, isColor := ParseColor(part); isColor {
					styles["background-color"] = part
					break
				}
			}
		}
	}
}

// An explicitly declared longhand beats its shorthand regardless of order.
func setIfAbsent(styles map[string]string, prop, val string) {
	if _, ok := styles[prop]; !ok {
		styles[prop] = val
	}
}

func expand1To4Shorthand(styles map[string]string, shorthand, top, right, bottom, left string) {
	val, ok := styles[shorthand]
	if !ok {
		return
	}
	parts := strings.Fields(val)
	// border-radius may carry an elliptical "/ vertical" part; only the
	// horizontal radii are kept.
	for i, p := range parts {
		if p == "/" {
			parts = parts[:i]
			break
		}
	}
	var t, r, b, l string
	switch len(parts) {
	case 1:
		t, r, b, l = parts[0], parts[0], parts[0], parts[0]
	case 2:
		t, r, b, l = parts[0], parts[1], parts[0], parts[1]
	case 3:
		t, r, b, l = parts[0], parts[1], parts[2], parts[1]
	case 4:
		t, r, b, l = parts[0], parts[1], parts[2], parts[3]
	default:
		return
	}
	setIfAbsent(styles, top, t)
	setIfAbsent(styles, right, r)
	setIfAbsent(styles, bottom, b)
	setIfAbsent(styles, left, l)
}
