package stages

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/JakeFAU/yacrawler/internal/crawler"
	"github.com/JakeFAU/yacrawler/internal/pipeline"
)

// StoreBlob writes the raw body to store under prefix/site/hash.ext and
// records the returned URI. Empty bodies are skipped.
func StoreBlob(store crawler.BlobStore, prefix string) pipeline.StageFunc[crawler.Record, crawler.Record] {
	return func(ctx context.Context, rec crawler.Record) (crawler.Record, error) {
		if len(rec.Body) == 0 {
			return rec, nil
		}
		if rec.ContentHash == "" {
			return rec, errors.New("content hash is required to name the blob")
		}
		key := BlobPath(prefix, rec)
		uri, err := store.PutObject(ctx, key, rec.ContentType, rec.Body)
		if err != nil {
			return rec, fmt.Errorf("put blob %s: %w", key, err)
		}
		rec.BlobURI = uri
		return rec, nil
	}
}

// BlobPath names the object holding a record body.
func BlobPath(prefix string, rec crawler.Record) string {
	ext := ".bin"
	if isHTML(rec.ContentType) {
		ext = ".html"
	}
	return path.Join(prefix, crawler.SiteOf(rec.URL), rec.ContentHash+ext)
}
