package commentbody

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// blockBoundary matches line breaks and the closing tags of block elements,
// which delimit paragraphs in writer markup.
var blockBoundary = regexp.MustCompile(`(?i)<br\s*/?>|</(?:p|div|li|h[1-6]|blockquote|pre|tr)\s*>`)

var stripAll = bluemonday.StrictPolicy()

// parseWriter flattens legacy HTML bodies. Malformed HTML is tolerated the way
// browsers tolerate it, so this encoding never fails.
func parseWriter(markup string) ([]string, []string) {
	var links []string
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup)); err == nil {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			links = append(links, s.AttrOr("href", ""))
		})
	}

	broken := blockBoundary.ReplaceAllString(markup, "\n")
	text := html.UnescapeString(stripAll.Sanitize(broken))

	return strings.Split(text, "\n"), links
}
