package discover

import (
	"regexp"

	"github.com/samber/lo"

	"github.com/JakeFAU/yacrawler/internal/crawler"
)

var hrefPattern = regexp.MustCompile(`(?i)href=["'](https?://[^"']+)["']`)

// Regex finds absolute http(s) links in href attributes with a regular
// expression. It does not parse the document, so relative links are ignored.
type Regex struct{}

// NewRegex returns a Regex discoverer.
func NewRegex() Regex {
	return Regex{}
}

// Discover returns the distinct links of page in first-seen order.
func (Regex) Discover(page crawler.Page) []string {
	if len(page.Body) == 0 {
		return []string{}
	}
	matches := hrefPattern.FindAllSubmatch(page.Body, -1)
	links := lo.Map(matches, func(m [][]byte, _ int) string {
		return string(m[1])
	})
	return lo.Uniq(links)
}
