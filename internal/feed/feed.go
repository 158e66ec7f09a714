// Package feed defines the live notification feed the app subscribes to.
//
// A Source answers filtered queries with full snapshots, either once (Fetch)
// or continuously (Watch), and accepts partial point writes (Update).
package feed

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("feed: record not found")
	ErrPermissionDenied = errors.New("feed: permission denied")
	ErrStreamClosed     = errors.New("feed: stream closed")
)

// Filter selects the records of one recipient.
type Filter struct {
	RecipientID string
	UnreadOnly  bool
}

// Matches reports whether a stored payload belongs to the filter.
func (f Filter) Matches(p Payload) bool {
	if p.RecipientID != f.RecipientID {
		return false
	}
	if f.UnreadOnly && p.IsRead != nil && *p.IsRead {
		return false
	}
	return true
}

// Payload is the producer-written body of a record. Pointer fields may be
// missing: CreatedAt while the server timestamp is pending, IsRead when the
// producer never set it.
type Payload struct {
	ID          *string    `json:"id,omitempty"`
	RecipientID string     `json:"recipientId"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Link        *string    `json:"link,omitempty"`
	IsRead      *bool      `json:"isRead,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

// RawRecord is a record as delivered by the store: the envelope ID assigned
// by the store plus the producer payload.
type RawRecord struct {
	ID      string
	Payload Payload
}

// Patch is a partial field set for Update. Nil fields are left untouched.
// ReadAt is only applied when the stored record has none yet. A non-empty
// Owner restricts the write to records of that recipient; any other record
// is reported as ErrNotFound.
type Patch struct {
	IsRead *bool
	ReadAt *time.Time
	Owner  string
}

// Event is one push from a live query: a full snapshot, or the error that
// terminated the stream.
type Event struct {
	Snapshot []RawRecord
	Err      error
}

// Source is the live document store holding notifications.
type Source interface {
	// Watch opens a live query. The initial snapshot is sent first, then one
	// full snapshot per change. The channel is closed when ctx is cancelled or
	// the stream fails; a failing stream sends a single Event with Err set
	// before closing.
	Watch(ctx context.Context, f Filter) (<-chan Event, error)
	Fetch(ctx context.Context, f Filter) ([]RawRecord, error)
	Update(ctx context.Context, id string, p Patch) error
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Time returns a pointer to t.
func Time(t time.Time) *time.Time { return &t }
