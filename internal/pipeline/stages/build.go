package stages

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/JakeFAU/yacrawler/internal/crawler"
	"github.com/JakeFAU/yacrawler/internal/pipeline"
)

// Stage names accepted by Build.
const (
	NameRecord   = "record"
	NameMarkdown = "markdown"
	NameBlob     = "blob"
	NamePostgres = "postgres"
	NamePublish  = "publish"
	NameJSONL    = "jsonl"
)

// Deps carries the collaborators stages may need. Only the dependencies of
// the requested stages must be set.
type Deps struct {
	Hasher     crawler.Hasher
	Clock      crawler.Clock
	Blobs      crawler.BlobStore
	BlobPrefix string
	Records    crawler.RecordStore
	Publisher  crawler.Publisher
	Topic      string
	JSONL      *JSONLWriter
}

// Build assembles a pipeline from stage names. The record stage always runs
// first and is added when missing.
func Build(names []string, deps Deps) (crawler.Pipeline, []string, error) {
	names = lo.Map(names, func(name string, _ int) string {
		return strings.ToLower(strings.TrimSpace(name))
	})
	names = lo.Compact(names)
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return nil, nil, fmt.Errorf("duplicate pipeline stages: %s", strings.Join(dups, ", "))
	}
	if idx := lo.IndexOf(names, NameRecord); idx > 0 {
		return nil, nil, fmt.Errorf("stage %q must come first", NameRecord)
	} else if idx < 0 {
		names = append([]string{NameRecord}, names...)
	}
	if deps.Hasher == nil || deps.Clock == nil {
		return nil, nil, fmt.Errorf("stage %q needs a hasher and a clock", NameRecord)
	}

	chain := pipeline.New(NameRecord, ParseRecord(deps.Hasher, deps.Clock))
	for _, name := range names[1:] {
		fn, err := recordStage(name, deps)
		if err != nil {
			return nil, nil, err
		}
		chain = pipeline.Then(chain, name, fn)
	}
	return pipeline.Processor(chain), chain.Stages(), nil
}

func recordStage(name string, deps Deps) (pipeline.StageFunc[crawler.Record, crawler.Record], error) {
	missing := func(what string) error {
		return fmt.Errorf("stage %q needs %s", name, what)
	}
	switch name {
	case NameMarkdown:
		return Markdown(), nil
	case NameBlob:
		if deps.Blobs == nil {
			return nil, missing("a blob store")
		}
		return StoreBlob(deps.Blobs, deps.BlobPrefix), nil
	case NamePostgres:
		if deps.Records == nil {
			return nil, missing("a record store")
		}
		return SaveRecord(deps.Records), nil
	case NamePublish:
		if deps.Publisher == nil || deps.Topic == "" {
			return nil, missing("a publisher and a topic")
		}
		return Publish(deps.Publisher, deps.Topic), nil
	case NameJSONL:
		if deps.JSONL == nil {
			return nil, missing("an output file")
		}
		return deps.JSONL.Write, nil
	default:
		return nil, fmt.Errorf("unknown pipeline stage %q", name)
	}
}
