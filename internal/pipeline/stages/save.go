package stages

import (
	"context"
	"fmt"

	"github.com/JakeFAU/yacrawler/internal/crawler"
	"github.com/JakeFAU/yacrawler/internal/pipeline"
)

// SaveRecord persists the record.
func SaveRecord(store crawler.RecordStore) pipeline.StageFunc[crawler.Record, crawler.Record] {
	return func(ctx context.Context, rec crawler.Record) (crawler.Record, error) {
		if err := store.SaveRecord(ctx, rec); err != nil {
			return rec, fmt.Errorf("save record: %w", err)
		}
		return rec, nil
	}
}

// Publish announces the record on topic.
func Publish(pub crawler.Publisher, topic string) pipeline.StageFunc[crawler.Record, crawler.Record] {
	return func(ctx context.Context, rec crawler.Record) (crawler.Record, error) {
		if _, err := pub.Publish(ctx, topic, rec); err != nil {
			return rec, fmt.Errorf("publish record: %w", err)
		}
		return rec, nil
	}
}
