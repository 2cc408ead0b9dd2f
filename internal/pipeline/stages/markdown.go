package stages

import (
	"context"
	"fmt"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"github.com/JakeFAU/yacrawler/internal/crawler"
	"github.com/JakeFAU/yacrawler/internal/pipeline"
)

// Markdown renders HTML records to GitHub flavored markdown. Other content
// types pass through unchanged.
func Markdown() pipeline.StageFunc[crawler.Record, crawler.Record] {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return func(_ context.Context, rec crawler.Record) (crawler.Record, error) {
		if !isHTML(rec.ContentType) || len(rec.Body) == 0 {
			return rec, nil
		}
		out, err := converter.ConvertString(string(rec.Body))
		if err != nil {
			return rec, fmt.Errorf("convert %s to markdown: %w", rec.URL, err)
		}
		rec.Markdown = out
		return rec, nil
	}
}
