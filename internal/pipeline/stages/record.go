package stages

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/yacrawler/internal/crawler"
	"github.com/JakeFAU/yacrawler/internal/pipeline"
)

// ParseRecord turns a fetched page into a record carrying the URL, status,
// flattened headers, content hash and, for HTML, the document title.
func ParseRecord(hasher crawler.Hasher, clock crawler.Clock) pipeline.StageFunc[crawler.Page, crawler.Record] {
	return func(ctx context.Context, page crawler.Page) (crawler.Record, error) {
		hash, err := hasher.Hash(page.Body)
		if err != nil {
			return crawler.Record{}, fmt.Errorf("hash body: %w", err)
		}
		fetchedAt := page.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = clock.Now()
		}
		rec := crawler.Record{
			RunID:       crawler.RunIDFromContext(ctx),
			URL:         page.Entry.URL,
			FinalURL:    page.URL(),
			Depth:       page.Entry.Depth,
			StatusCode:  page.StatusCode,
			Headers:     page.FlatHeaders(),
			ContentType: page.Headers.Get("Content-Type"),
			ContentHash: hash,
			Bytes:       page.ContentLength(),
			FetchedAt:   fetchedAt,
			Body:        page.Body,
		}
		if rec.ContentType == "" && len(page.Body) > 0 {
			rec.ContentType = http.DetectContentType(page.Body)
		}
		if isHTML(rec.ContentType) {
			rec.Title = extractTitle(page.Body)
		}
		return rec, nil
	}
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

func extractTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}
