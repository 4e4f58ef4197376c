// internal/editor/guest/policy.go
package guest

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// SourcePolicy decides which image sources the editor will load: absolute
// http(s) URLs and base64 data:image URLs.
type SourcePolicy struct {
	policy *bluemonday.Policy
}

// NewSourcePolicy builds the image source policy.
func NewSourcePolicy() *SourcePolicy {
	p := bluemonday.NewPolicy()
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("http", "https")
	p.AllowDataURIImages()
	p.AllowAttrs("src").OnElements("img")
	return &SourcePolicy{policy: p}
}

// Allowed reports whether src survives sanitization as an image source.
func (s *SourcePolicy) Allowed(src string) bool {
	src = strings.TrimSpace(src)
	if src == "" {
		return false
	}
	out := s.policy.Sanitize(`<img src="` + html.EscapeString(src) + `">`)
	return strings.Contains(out, "src=")
}
