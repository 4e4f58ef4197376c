package dom_test

import (
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/dom"
)

func TestXPath(t *testing.T) {
	doc := parse(t)

	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{"Element with ID", "//li[@id='special']", "//*[@id='special']"},
		{"Child of ID", "//div[@id='header']/h1", "//*[@id='header']/h1[1]"},
		{"Indexed siblings", "(//div[@class='content'])[1]/p[2]", "/html[1]/body[1]/div[2]/p[2]"},
		{"Nested indexing", "(//ul/li)[2]", "/html[1]/body[1]/div[2]/ul[1]/li[2]"},
		{"Second content block", "(//div[@class='content'])[2]/p", "/html[1]/body[1]/div[3]/p[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := htmlquery.FindOne(doc, tt.query)
			require.NotNil(t, node)
			path := dom.XPath(node)
			assert.Equal(t, tt.expected, path)

			found, err := dom.Query(doc, path)
			require.NoError(t, err)
			assert.Equal(t, node, found)
		})
	}

	assert.Empty(t, dom.XPath(nil))
	assert.Equal(t, "/", dom.XPath(doc))
}

func TestCSSPathRoundTrips(t *testing.T) {
	doc := parse(t)
	for _, n := range dom.FindAll(dom.Body(doc), func(n *html.Node) bool { return n.Type == html.ElementNode }) {
		sel := dom.CSSPath(n)
		found, err := dom.Query(doc, sel)
		require.NoError(t, err, sel)
		assert.Equal(t, n, found, sel)
	}

	special := htmlquery.FindOne(doc, "//li[@id='special']")
	assert.Equal(t, `[id="special"]`, dom.CSSPath(special))
	p := htmlquery.FindOne(doc, "(//div[@class='content'])[2]/p")
	assert.Equal(t, "html > body:nth-of-type(1) > div:nth-of-type(3) > p:nth-of-type(1)", dom.CSSPath(p))
}

func TestQueryErrors(t *testing.T) {
	doc := parse(t)

	_, err := dom.Query(doc, "#nope")
	assert.ErrorIs(t, err, dom.ErrNoMatch)

	_, err = dom.Query(doc, "div[[")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid css selector"))

	_, err = dom.Query(doc, "//div[")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid xpath"))

	_, err = dom.Query(doc, "  ")
	assert.Error(t, err)
}
