package engine

import "github.com/JakeFAU/yacrawler/internal/crawler"

// tracker is the task lifecycle bookkeeping of one run. It is owned by the
// dispatch loop and never touched by task goroutines, so it needs no lock.
// capacity + len(active) == max holds between calls.
type tracker struct {
	max      int
	capacity int
	nextID   uint64
	active   map[uint64]crawler.Entry
	peak     int
}

func newTracker(maxWorkers int) *tracker {
	return &tracker{
		max:      maxWorkers,
		capacity: maxWorkers,
		active:   make(map[uint64]crawler.Entry, maxWorkers),
	}
}

func (t *tracker) hasCapacity() bool {
	return t.capacity > 0
}

// start claims a slot for entry and returns the task id.
func (t *tracker) start(entry crawler.Entry) uint64 {
	t.nextID++
	id := t.nextID
	t.active[id] = entry
	t.capacity--
	if n := len(t.active); n > t.peak {
		t.peak = n
	}
	return id
}

// finish releases the slot held by id. Unknown ids, such as reports from
// tasks already abandoned, are ignored.
func (t *tracker) finish(id uint64) (crawler.Entry, bool) {
	entry, ok := t.active[id]
	if !ok {
		return crawler.Entry{}, false
	}
	delete(t.active, id)
	t.capacity++
	return entry, true
}

func (t *tracker) activeCount() int {
	return len(t.active)
}

// abandon forgets every in-flight task and returns their entries.
func (t *tracker) abandon() []crawler.Entry {
	out := make([]crawler.Entry, 0, len(t.active))
	for id, entry := range t.active {
		out = append(out, entry)
		delete(t.active, id)
	}
	t.capacity = t.max
	return out
}
