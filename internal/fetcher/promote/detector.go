package promote

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/release-notes-watcher/internal/watcher"
)

// DefaultMinTextChars is the visible-text length below which a script-heavy
// page is treated as an unrendered client-side shell.
const DefaultMinTextChars = 200

var shellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"></div>`),
	[]byte(`id="app"></div>`),
	[]byte("data-reactroot"),
	[]byte("ng-version="),
}

// Heuristic flags pages whose static HTML carries little of the content a
// browser would show.
type Heuristic struct {
	MinTextChars int
}

// NewHeuristic creates a detector. A non-positive threshold uses the default.
func NewHeuristic(minTextChars int) *Heuristic {
	if minTextChars <= 0 {
		minTextChars = DefaultMinTextChars
	}
	return &Heuristic{MinTextChars: minTextChars}
}

// NeedsRender reports whether page should be fetched again with a browser.
func (h *Heuristic) NeedsRender(page watcher.Page) bool {
	if page.Rendered || page.StatusCode != http.StatusOK {
		return false
	}
	body := page.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	for _, marker := range shellMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	scripts := doc.Find("script")
	scriptBytes := 0
	scripts.Each(func(_ int, s *goquery.Selection) {
		scriptBytes += len(s.Text())
	})
	doc.Find("script, style, noscript, template").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if len(text) >= h.MinTextChars {
		return false
	}
	// Thin text alone is fine for a small static page; it only signals a shell
	// when scripts dominate the document.
	return scripts.Length() > 0 && scriptBytes*4 >= len(body)
}
