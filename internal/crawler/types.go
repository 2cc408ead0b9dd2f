package crawler

import (
	"net/http"
	"strings"
	"time"
)

// Entry is one URL scheduled by the frontier together with its crawl depth.
// Seeds have depth 0; a discovered child always has its parent's depth + 1.
type Entry struct {
	URL   string
	Depth int
}

// FetchRequest captures everything a Fetcher needs to retrieve one entry.
type FetchRequest struct {
	URL     string
	Depth   int
	Headers http.Header
}

// NewFetchRequest builds the request for an entry.
func NewFetchRequest(entry Entry) FetchRequest {
	return FetchRequest{
		URL:   entry.URL,
		Depth: entry.Depth,
	}
}

// Page is the result of a successful fetch. It is owned by the task that
// produced it and dropped once the task finishes.
type Page struct {
	Entry      Entry
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	FetchedAt  time.Time
}

// URL returns the final URL after redirects, falling back to the requested URL.
func (p Page) URL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.Entry.URL
}

// ContentLength returns the number of body bytes.
func (p Page) ContentLength() int {
	return len(p.Body)
}

// FlatHeaders collapses multi-valued headers into a single comma separated
// value per key.
func (p Page) FlatHeaders() map[string]string {
	out := make(map[string]string, len(p.Headers))
	for k, values := range p.Headers {
		out[k] = strings.Join(values, ", ")
	}
	return out
}

// Record is the structured form of a page produced by the first stage of the
// default pipeline and enriched by the stages after it.
type Record struct {
	RunID       string            `json:"run_id,omitempty"`
	URL         string            `json:"url"`
	FinalURL    string            `json:"final_url,omitempty"`
	Depth       int               `json:"depth"`
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	ContentType string            `json:"content_type,omitempty"`
	Title       string            `json:"title,omitempty"`
	ContentHash string            `json:"content_hash,omitempty"`
	Bytes       int               `json:"bytes"`
	FetchedAt   time.Time         `json:"fetched_at"`
	BlobURI     string            `json:"blob_uri,omitempty"`
	Markdown    string            `json:"markdown,omitempty"`

	Body []byte `json:"-"`
}

// PartitionKey groups records by host for keyed transports.
func (r Record) PartitionKey() string {
	return SiteOf(r.URL)
}
