package notify

import (
	"context"
	"sync"
	"time"

	"pawcare/internal/feed"
	"pawcare/internal/feed/memory"
	"pawcare/internal/model"
)

func ids(records []model.Notification) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// seed inserts a record for recipient with the given read state.
func seed(src *memory.Source, id, recipient string, createdAt *time.Time, read bool) {
	p := feed.Payload{
		RecipientID: recipient,
		Title:       "Grooming reminder",
		Body:        "Your appointment is tomorrow",
		CreatedAt:   createdAt,
		IsRead:      feed.Bool(read),
	}
	if read {
		p.ReadAt = createdAt
	}
	src.InsertWithID(id, p)
}

// recorder collects onUpdate calls.
type recorder struct {
	mu        sync.Mutex
	snapshots [][]model.Notification
}

func (r *recorder) onUpdate(records []model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, records)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *recorder) last() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

// failingFetch wraps a source whose bulk read fails.
type failingFetch struct {
	feed.Source
	err error
}

func (f failingFetch) Fetch(ctx context.Context, filter feed.Filter) ([]feed.RawRecord, error) {
	return nil, f.err
}

// countingUpdates wraps a source and counts Update calls, failing each with err.
type countingUpdates struct {
	feed.Source
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingUpdates) Update(ctx context.Context, id string, p feed.Patch) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.err
}

func (c *countingUpdates) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// lateArrival inserts a new unread record right after the bulk read returns.
type lateArrival struct {
	*memory.Source
	once sync.Once
	id   string
}

func (l *lateArrival) Fetch(ctx context.Context, filter feed.Filter) ([]feed.RawRecord, error) {
	out, err := l.Source.Fetch(ctx, filter)
	l.once.Do(func() {
		seed(l.Source, l.id, filter.RecipientID, &baseTime, false)
	})
	return out, err
}
