// Package sanitize turns upstream listing HTML into plain text for the
// reconciliation extractor and the UI.
package sanitize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CleanHTML strips markup from a listing description. Script/style bodies
// are dropped, line-breaking elements become newlines, and whitespace runs
// collapse. Input that is already plain text passes through unchanged apart
// from whitespace normalization.
func CleanHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript, iframe").Remove()

	// Preserve intentional line structure before flattening to text.
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})

	return normalize(doc.Text()), nil
}

func normalize(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
