// Package memory is an in-process feed.Source. It backs the server's dev mode
// and stands in for the real store in tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"pawcare/internal/feed"
)

type watcher struct {
	filter  feed.Filter
	pending chan feed.Event
}

type Source struct {
	mu       sync.Mutex
	order    []string
	records  map[string]*feed.Payload
	watchers map[*watcher]struct{}

	nextWatchErr error
	updateErrs   map[string]error
}

func New() *Source {
	return &Source{
		records:    make(map[string]*feed.Payload),
		watchers:   make(map[*watcher]struct{}),
		updateErrs: make(map[string]error),
	}
}

// Insert stores a new record under a fresh id and pushes it to watchers.
func (s *Source) Insert(p feed.Payload) string {
	id := uuid.NewString()
	s.InsertWithID(id, p)
	return id
}

// InsertWithID stores p under id, replacing any previous record with that id.
func (s *Source) InsertWithID(id string, p feed.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		s.order = append(s.order, id)
	}
	cp := copyPayload(p)
	s.records[id] = &cp
	s.notifyLocked(p.RecipientID)
}

func (s *Source) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.records[id]
	if !ok {
		return
	}
	delete(s.records, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.notifyLocked(p.RecipientID)
}

// Get returns a copy of the stored payload.
func (s *Source) Get(id string) (feed.Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.records[id]
	if !ok {
		return feed.Payload{}, false
	}
	return copyPayload(*p), true
}

// FailNextWatch makes the next Watch call fail with err.
func (s *Source) FailNextWatch(err error) {
	s.mu.Lock()
	s.nextWatchErr = err
	s.mu.Unlock()
}

// FailUpdates makes every Update of id fail with err. A nil err clears it.
func (s *Source) FailUpdates(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.updateErrs, id)
		return
	}
	s.updateErrs[id] = err
}

// Break terminates every live query of recipientID with err.
func (s *Source) Break(recipientID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for w := range s.watchers {
		if w.filter.RecipientID != recipientID {
			continue
		}
		push(w, feed.Event{Err: err})
		delete(s.watchers, w)
	}
}

// Watchers returns the number of open live queries.
func (s *Source) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *Source) Watch(ctx context.Context, f feed.Filter) (<-chan feed.Event, error) {
	s.mu.Lock()
	if err := s.nextWatchErr; err != nil {
		s.nextWatchErr = nil
		s.mu.Unlock()
		return nil, err
	}
	w := &watcher{filter: f, pending: make(chan feed.Event, 1)}
	s.watchers[w] = struct{}{}
	push(w, feed.Event{Snapshot: s.snapshotLocked(f)})
	s.mu.Unlock()

	out := make(chan feed.Event)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.watchers, w)
			s.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-w.pending:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Err != nil {
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Source) Fetch(ctx context.Context, f feed.Filter) ([]feed.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(f), nil
}

func (s *Source) Update(ctx context.Context, id string, p feed.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateErrs[id]; err != nil {
		return err
	}
	rec, ok := s.records[id]
	if !ok || (p.Owner != "" && rec.RecipientID != p.Owner) {
		return feed.ErrNotFound
	}
	if p.IsRead != nil {
		rec.IsRead = feed.Bool(*p.IsRead)
	}
	if p.ReadAt != nil && rec.ReadAt == nil {
		rec.ReadAt = feed.Time(*p.ReadAt)
	}
	s.notifyLocked(rec.RecipientID)
	return nil
}

func (s *Source) snapshotLocked(f feed.Filter) []feed.RawRecord {
	out := make([]feed.RawRecord, 0, len(s.order))
	for _, id := range s.order {
		p := s.records[id]
		if !f.Matches(*p) {
			continue
		}
		out = append(out, feed.RawRecord{ID: id, Payload: copyPayload(*p)})
	}
	return out
}

func (s *Source) notifyLocked(recipientID string) {
	for w := range s.watchers {
		if w.filter.RecipientID == recipientID {
			push(w, feed.Event{Snapshot: s.snapshotLocked(w.filter)})
		}
	}
}

// push replaces any undelivered event: snapshots are wholesale, so only the
// latest one matters. Callers hold s.mu, which makes them the only sender.
func push(w *watcher, ev feed.Event) {
	select {
	case <-w.pending:
	default:
	}
	w.pending <- ev
}

func copyPayload(p feed.Payload) feed.Payload {
	cp := p
	if p.ID != nil {
		v := *p.ID
		cp.ID = &v
	}
	if p.Link != nil {
		v := *p.Link
		cp.Link = &v
	}
	if p.IsRead != nil {
		cp.IsRead = feed.Bool(*p.IsRead)
	}
	if p.ReadAt != nil {
		cp.ReadAt = feed.Time(*p.ReadAt)
	}
	if p.CreatedAt != nil {
		cp.CreatedAt = feed.Time(*p.CreatedAt)
	}
	return cp
}
