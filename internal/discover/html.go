package discover

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"github.com/JakeFAU/yacrawler/internal/crawler"
)

// HTML walks anchor elements and resolves their targets against the page URL,
// honoring a <base href> when the document declares one.
type HTML struct {
	sameHost bool
}

// HTMLOption customizes an HTML discoverer.
type HTMLOption func(*HTML)

// WithSameHost keeps only links on the host of the page being parsed.
func WithSameHost(enabled bool) HTMLOption {
	return func(h *HTML) {
		h.sameHost = enabled
	}
}

// NewHTML returns an HTML discoverer.
func NewHTML(opts ...HTMLOption) *HTML {
	h := &HTML{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Discover returns the distinct absolute http(s) links of page in document
// order.
func (h *HTML) Discover(page crawler.Page) []string {
	base, err := url.Parse(page.URL())
	if err != nil || len(page.Body) == 0 {
		return []string{}
	}
	base.Host = strings.ToLower(base.Host)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return []string{}
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if declared, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = declared
		}
	}

	links := make([]string, 0)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if link, ok := h.resolve(base, href); ok {
			links = append(links, link)
		}
	})
	return lo.Uniq(links)
}

func (h *HTML) resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "data:") {
		return "", false
	}
	target, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return "", false
	}
	if h.sameHost && !strings.EqualFold(target.Hostname(), base.Hostname()) {
		return "", false
	}
	target.Fragment = ""
	target.RawFragment = ""
	return target.String(), true
}
