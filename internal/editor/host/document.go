// internal/editor/host/document.go
package host

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/guest"
)

var (
	documentShellRe = regexp.MustCompile(`(?i)<html[\s>]`)
	closingBodyRe   = regexp.MustCompile(`(?i)</body\s*>`)
)

// WrapDocument returns document unchanged if it is a full document and
// wraps a bare fragment in a minimal shell otherwise.
func WrapDocument(document string) string {
	if documentShellRe.MatchString(document) {
		return document
	}
	return `<!DOCTYPE html><html><head><meta charset="utf-8"></head><body>` + document + `</body></html>`
}

// RuntimeScript renders the boot element for cfg. The attribute is written
// the way the HTML serializer writes it, so a parsed and re-rendered copy is
// byte-identical.
func RuntimeScript(cfg guest.Config) (string, error) {
	desc, err := guest.EncodeConfig(cfg)
	if err != nil {
		return "", fmt.Errorf("building runtime script: %w", err)
	}
	return `<script type="` + guest.RuntimeScriptType + `" ` + guest.AttrRuntime + `="">` + desc + `</script>`, nil
}

// InjectRuntime places script before the last closing body tag, or appends
// it when there is none.
func InjectRuntime(document, script string) string {
	locs := closingBodyRe.FindAllStringIndex(document, -1)
	if len(locs) == 0 {
		return document + script
	}
	at := locs[len(locs)-1][0]
	return document[:at] + script + document[at:]
}

// StripRuntime removes every copy of script from document. Any other boot
// element that slipped through is removed structurally, which re-renders
// the document.
func StripRuntime(document, script string) string {
	if script != "" {
		document = strings.ReplaceAll(document, script, "")
	}
	if !strings.Contains(document, guest.AttrRuntime) && !strings.Contains(document, guest.RuntimeScriptType) {
		return document
	}

	doc, err := dom.Parse(document)
	if err != nil {
		return document
	}
	scripts := dom.FindAll(doc, func(n *html.Node) bool {
		if !dom.IsElement(n, "script") {
			return false
		}
		t, _ := dom.Attr(n, "type")
		return dom.HasAttr(n, guest.AttrRuntime) || t == guest.RuntimeScriptType
	})
	if len(scripts) == 0 {
		return document
	}
	for _, n := range scripts {
		dom.Detach(n)
	}
	out, err := dom.Render(doc)
	if err != nil {
		return document
	}
	return out
}
