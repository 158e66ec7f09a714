// Package pgfeed serves the notification feed from Postgres. Live queries
// are driven by a Redis Pub/Sub change signal per recipient: every write
// publishes the recipient id, and each watcher re-reads its full snapshot.
package pgfeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	dbcontracts "pawcare/contracts/db"
	"pawcare/internal/feed"
	"pawcare/internal/repository"
)

const channelPrefix = "notify:changed:"

// Channel is the Pub/Sub channel carrying change signals for recipientID.
func Channel(recipientID string) string {
	return channelPrefix + recipientID
}

// Store is the subset of the notification repository the feed reads and writes.
type Store interface {
	ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool) ([]dbcontracts.Notification, error)
	MarkRead(ctx context.Context, id, owner string, isRead *bool, readAt *time.Time) (string, error)
}

type Source struct {
	store  Store
	rdb    *redis.Client
	logger *zap.Logger
}

func New(store Store, rdb *redis.Client, logger *zap.Logger) *Source {
	return &Source{
		store:  store,
		rdb:    rdb,
		logger: logger,
	}
}

func (s *Source) Fetch(ctx context.Context, f feed.Filter) ([]feed.RawRecord, error) {
	rows, err := s.store.ListByRecipient(ctx, f.RecipientID, f.UnreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]feed.RawRecord, 0, len(rows))
	for _, n := range rows {
		out = append(out, toRaw(n))
	}
	return out, nil
}

func (s *Source) Update(ctx context.Context, id string, p feed.Patch) error {
	recipientID, err := s.store.MarkRead(ctx, id, p.Owner, p.IsRead, p.ReadAt)
	if errors.Is(err, repository.ErrNotificationNotFound) {
		return feed.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update notification %s: %w", id, err)
	}
	// The write already landed; a lost signal only delays the next snapshot.
	if err := s.Signal(ctx, recipientID); err != nil {
		s.logger.Warn("Failed to publish change signal",
			zap.String("recipient_id", recipientID),
			zap.Error(err),
		)
	}
	return nil
}

// Signal tells every live query of recipientID to re-read its snapshot.
func (s *Source) Signal(ctx context.Context, recipientID string) error {
	return s.rdb.Publish(ctx, Channel(recipientID), recipientID).Err()
}

func (s *Source) Watch(ctx context.Context, f feed.Filter) (<-chan feed.Event, error) {
	pubsub := s.rdb.Subscribe(ctx, Channel(f.RecipientID))

	// Ensure subscription is established before the initial read, so no
	// change between the read and the first signal is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(f.RecipientID), err)
	}

	initial, err := s.Fetch(ctx, f)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan feed.Event)
	go s.run(ctx, f, pubsub, initial, out)
	return out, nil
}

func (s *Source) run(ctx context.Context, f feed.Filter, pubsub *redis.PubSub, initial []feed.RawRecord, out chan<- feed.Event) {
	defer pubsub.Close()
	// go-redis reconnects behind the channel and drops signals published
	// while it was down. The resubscribe confirmation is our cue to re-read.
	s.follow(ctx, f, pubsub.ChannelWithSubscriptions(), initial, out)
}

// follow emits initial, then one fresh snapshot per burst of signals. It
// closes out when ctx ends, the signal channel closes, or a re-read fails.
func (s *Source) follow(ctx context.Context, f feed.Filter, signals <-chan interface{}, initial []feed.RawRecord, out chan<- feed.Event) {
	defer close(out)

	send := func(ev feed.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(feed.Event{Snapshot: initial}) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-signals:
			if !ok {
				send(feed.Event{Err: feed.ErrStreamClosed})
				return
			}
			switch m := msg.(type) {
			case *redis.Message:
			case *redis.Subscription:
				s.logger.Info("Change signal resubscribed, re-reading",
					zap.String("recipient_id", f.RecipientID),
					zap.String("kind", m.Kind),
				)
			default:
				continue
			}
			drain(signals)

			snap, err := s.Fetch(ctx, f)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("Live query re-read failed",
					zap.String("recipient_id", f.RecipientID),
					zap.Error(err),
				)
				send(feed.Event{Err: err})
				return
			}
			if !send(feed.Event{Snapshot: snap}) {
				return
			}
		}
	}
}

// drain discards queued signals; one re-read covers all of them.
func drain(signals <-chan interface{}) {
	for {
		select {
		case _, ok := <-signals:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func toRaw(n dbcontracts.Notification) feed.RawRecord {
	return feed.RawRecord{
		ID: n.ID,
		Payload: feed.Payload{
			RecipientID: n.RecipientID,
			Title:       n.Title,
			Body:        n.Body,
			Link:        n.Link,
			IsRead:      n.IsRead,
			ReadAt:      n.ReadAt,
			CreatedAt:   n.CreatedAt,
		},
	}
}
