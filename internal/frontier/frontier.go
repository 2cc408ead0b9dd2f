// Package frontier holds the crawl frontier: the set of URLs ever enqueued and
// the FIFO backlog of entries still waiting to be visited.
package frontier

import (
	"sort"
	"sync"

	"github.com/JakeFAU/yacrawler/internal/crawler"
)

// Frontier is safe for concurrent use. TryEnqueue is the only deduplication
// gate of the crawl: a URL is checked against and inserted into the seen set
// under the same lock that appends it to the backlog.
type Frontier struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	backlog []crawler.Entry
	head    int
}

// New returns an empty Frontier.
func New() *Frontier {
	return &Frontier{
		seen: make(map[string]struct{}),
	}
}

// TryEnqueue records url at depth and returns true if it has never been seen.
// It returns false, without mutating anything, for a known URL, an empty URL
// or a negative depth.
func (f *Frontier) TryEnqueue(url string, depth int) bool {
	if url == "" || depth < 0 {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[url]; ok {
		return false
	}
	f.seen[url] = struct{}{}
	f.backlog = append(f.backlog, crawler.Entry{URL: url, Depth: depth})
	return true
}

// Dequeue removes and returns the oldest entry.
func (f *Frontier) Dequeue() (crawler.Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.head >= len(f.backlog) {
		return crawler.Entry{}, false
	}
	entry := f.backlog[f.head]
	f.backlog[f.head] = crawler.Entry{}
	f.head++
	f.compact()
	return entry, true
}

// compact reclaims the consumed prefix once it dominates the slice.
func (f *Frontier) compact() {
	if f.head == len(f.backlog) {
		f.backlog = f.backlog[:0]
		f.head = 0
		return
	}
	if f.head > 64 && f.head*2 > len(f.backlog) {
		n := copy(f.backlog, f.backlog[f.head:])
		f.backlog = f.backlog[:n]
		f.head = 0
	}
}

// IsEmpty reports whether the backlog has no entries.
func (f *Frontier) IsEmpty() bool {
	return f.Len() == 0
}

// Len returns the number of entries waiting in the backlog.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.backlog) - f.head
}

// SeenCount returns the number of distinct URLs ever enqueued.
func (f *Frontier) SeenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// Contains reports whether url has been enqueued at some point.
func (f *Frontier) Contains(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[url]
	return ok
}

// Seen returns a sorted snapshot of every URL ever enqueued.
func (f *Frontier) Seen() []string {
	f.mu.Lock()
	out := make([]string, 0, len(f.seen))
	for url := range f.seen {
		out = append(out, url)
	}
	f.mu.Unlock()
	sort.Strings(out)
	return out
}
