package style

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"
)

// Helper to parse HTML and find a node by ID.
func parseHTMLAndFind(t *testing.T, doc, id string) (*html.Node, *html.Node) {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	var found *html.Node
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if found != nil {
			return
		}
		if v, ok := attr(n, "id"); ok && n.Type == html.ElementNode && v == id {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(root)
	require.NotNil(t, found, "no element with id %q", id)
	return root, found
}

func TestCSSCascade(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t))

	t.Run("Specificity Ordering", func(t *testing.T) {
		doc, target := parseHTMLAndFind(t, `<html><head><style>
			#target { color: blue; }
			p.highlight { color: green; }
			p { color: red; }
		</style></head><body><p id="target" class="highlight">Test</p></body></html>`, "target")

		computed := engine.ForDocument(doc).Compute(target)
		assert.Equal(t, "rgb(0, 0, 255)", computed["color"])
	})

	t.Run("Later Rule Wins At Equal Specificity", func(t *testing.T) {
		doc, target := parseHTMLAndFind(t, `<style>p { color: red; } p { color: green; }</style><p id="target">x</p>`, "target")
		assert.Equal(t, "rgb(0, 128, 0)", engine.ForDocument(doc).Compute(target)["color"])
	})

	t.Run("Inline Beats Author", func(t *testing.T) {
		doc, target := parseHTMLAndFind(t, `<style>#target { color: blue; }</style><p id="target" style="color: red">x</p>`, "target")
		assert.Equal(t, "rgb(255, 0, 0)", engine.ForDocument(doc).Compute(target)["color"])
	})

	t.Run("Important Author Beats Inline", func(t *testing.T) {
		doc, target := parseHTMLAndFind(t, `<style>p { color: blue !important; }</style><p id="target" style="color: red">x</p>`, "target")
		assert.Equal(t, "rgb(0, 0, 255)", engine.ForDocument(doc).Compute(target)["color"])
	})

	t.Run("User Agent Defaults", func(t *testing.T) {
		doc, target := parseHTMLAndFind(t, `<h1 id="target">Title</h1>`, "target")
		computed := engine.ForDocument(doc).Compute(target)
		assert.Equal(t, "block", computed["display"])
		assert.Equal(t, "32px", computed["font-size"])
		assert.Equal(t, "700", computed["font-weight"])
	})

	t.Run("Unsupported Selectors Are Skipped", func(t *testing.T) {
		doc, target := parseHTMLAndFind(t, `<style>p:::nope { color: red; } p { color: green; }</style><p id="target">x</p>`, "target")
		assert.Equal(t, "rgb(0, 128, 0)", engine.ForDocument(doc).Compute(target)["color"])
	})
}

func TestInheritance(t *testing.T) {
	engine := NewEngine(nil)
	doc, target := parseHTMLAndFind(t, `<div style="color: #00f; font-size: 20px; text-align: center; width: 50px">
		<span id="target" style="font-size: 1.5em">x</span></div>`, "target")

	computed := engine.ForDocument(doc).Compute(target)
	assert.Equal(t, "rgb(0, 0, 255)", computed["color"])
	assert.Equal(t, "30px", computed["font-size"])
	assert.Equal(t, "center", computed["text-align"])
	assert.Equal(t, "400", computed["font-weight"])
	_, hasWidth := computed["width"]
	assert.False(t, hasWidth, "width is not inherited")

	t.Run("Explicit Inherit", func(t *testing.T) {
		doc, target := parseHTMLAndFind(t, `<div style="background-color: red"><p id="target" style="background-color: inherit">x</p></div>`, "target")
		assert.Equal(t, "rgb(255, 0, 0)", engine.ForDocument(doc).Compute(target)["background-color"])
	})

	t.Run("Root Defaults", func(t *testing.T) {
		doc, target := parseHTMLAndFind(t, `<p id="target">x</p>`, "target")
		computed := engine.ForDocument(doc).Compute(target)
		assert.Equal(t, "rgb(0, 0, 0)", computed["color"])
		assert.Equal(t, "16px", computed["font-size"])
		assert.Equal(t, "start", computed["text-align"])
	})
}

func TestShorthandExpansion(t *testing.T) {
	engine := NewEngine(nil)
	doc, target := parseHTMLAndFind(t, `<div id="target" style="margin: 1px 2px; border-radius: 8px; border: 2px solid red; background: #fff url(x.png)"></div>`, "target")

	c := engine.ForDocument(doc).Compute(target)
	assert.Equal(t, "1px", c["margin-top"])
	assert.Equal(t, "2px", c["margin-left"])
	assert.Equal(t, "8px", c["border-top-left-radius"])
	assert.Equal(t, "8px", c["border-bottom-right-radius"])
	assert.Equal(t, "2px", c["border-top-width"])
	assert.Equal(t, "solid", c["border-left-style"])
	assert.Equal(t, "red", c["border-right-color"])
	assert.Equal(t, "rgb(255, 255, 255)", c["background-color"])
}

func TestFontWeightNormalization(t *testing.T) {
	assert.Equal(t, "700", normalizeFontWeight("bold", "400"))
	assert.Equal(t, "400", normalizeFontWeight("normal", "700"))
	assert.Equal(t, "700", normalizeFontWeight("bolder", "400"))
	assert.Equal(t, "900", normalizeFontWeight("bolder", "700"))
	assert.Equal(t, "100", normalizeFontWeight("lighter", "400"))
	assert.Equal(t, "600", normalizeFontWeight("600", "400"))
}
