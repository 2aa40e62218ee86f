// Package extract reduces fetched HTML to the text used for change detection.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultSelector targets the page's primary content region.
const DefaultSelector = "main"

// noiseSelector matches elements whose text is never page content. Inline
// scripts often carry per-request nonces that would change the hash on
// every fetch.
const noiseSelector = "script, style, noscript, template"

// Extractor pulls plain text from the first element matching Selector,
// falling back to <body> and then to the whole document.
type Extractor struct {
	selector string
}

// New builds an Extractor. An empty selector uses DefaultSelector.
func New(selector string) *Extractor {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		selector = DefaultSelector
	}
	return &Extractor{selector: selector}
}

// Selector returns the configured content selector.
func (e *Extractor) Selector() string {
	return e.selector
}

// Text parses html and returns the text content of the content region with
// all markup stripped.
func (e *Extractor) Text(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(noiseSelector).Remove()

	region := doc.Find(e.selector).First()
	if region.Length() == 0 {
		region = doc.Find("body").First()
	}
	if region.Length() == 0 {
		region = doc.Selection
	}
	return region.Text(), nil
}
