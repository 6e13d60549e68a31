package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultDescriptionSelectors locate the body text on a detail page.
var DefaultDescriptionSelectors = []string{
	"[itemprop='description']",
	"#description",
	".description",
	".solicitation-description",
	"main p",
}

// Description returns the first non-empty text block matched by selectors.
func Description(html string, selectors []string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse detail page: %w", err)
	}
	if len(selectors) == 0 {
		selectors = DefaultDescriptionSelectors
	}
	for _, selector := range selectors {
		var parts []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if text := cleanText(s.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}
	return "", nil
}
