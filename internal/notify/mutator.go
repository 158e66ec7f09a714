package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pawcare/internal/feed"
	"pawcare/pkg/circuitbreaker"
	"pawcare/pkg/metrics"
	"pawcare/pkg/util"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultConcurrency  = 8
)

// WriteFailure is one read-state write that did not land.
type WriteFailure struct {
	ID  string
	Err error
}

// BatchResult reports a mark-all-read pass. Writes are best-effort: every
// unread record is attempted even after a failure.
type BatchResult struct {
	RecipientID string
	Attempted   int
	Succeeded   int
	Failures    []WriteFailure
	FetchErr    error
}

// OK is true when the unread set was read and every write succeeded. An
// empty unread set is OK: the target state already holds.
func (r BatchResult) OK() bool {
	return r.FetchErr == nil && len(r.Failures) == 0
}

// FailedIDs lists the records to retry.
func (r BatchResult) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		ids = append(ids, f.ID)
	}
	return ids
}

type MutatorOption func(*Mutator)

func WithBreaker(cb *circuitbreaker.CircuitBreaker) MutatorOption {
	return func(m *Mutator) { m.breaker = cb }
}

func WithMutatorClock(now func() time.Time) MutatorOption {
	return func(m *Mutator) { m.now = now }
}

// WithConcurrency bounds parallel writes in MarkAllRead.
func WithConcurrency(n int) MutatorOption {
	return func(m *Mutator) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

func WithWriteTimeout(d time.Duration) MutatorOption {
	return func(m *Mutator) {
		if d > 0 {
			m.writeTimeout = d
		}
	}
}

// Mutator moves records from unread to read at the feed source. It never
// writes isRead=false, so read state only moves forward.
type Mutator struct {
	source       feed.Source
	logger       *zap.Logger
	breaker      *circuitbreaker.CircuitBreaker
	now          func() time.Time
	concurrency  int
	writeTimeout time.Duration
}

func NewMutator(source feed.Source, logger *zap.Logger, opts ...MutatorOption) *Mutator {
	m := &Mutator{
		source:       source,
		logger:       logger,
		now:          time.Now,
		concurrency:  defaultConcurrency,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.breaker == nil {
		m.breaker = NewWriteBreaker(circuitbreaker.DefaultConfig())
	}
	return m
}

// NewWriteBreaker builds a breaker that only counts transient write errors
// and exports its state.
func NewWriteBreaker(cfg circuitbreaker.Config) *circuitbreaker.CircuitBreaker {
	cfg.IsFailure = isTransient
	cfg.OnStateChange = func(_, to circuitbreaker.State) {
		metrics.SetWriteBreakerState(to.String())
	}
	return circuitbreaker.NewCircuitBreaker(cfg)
}

// MarkRead flags one record as read. Marking an already read record
// succeeds and keeps its original readAt. Failures are logged and reported
// as false.
func (m *Mutator) MarkRead(ctx context.Context, id string) bool {
	return m.markRead(ctx, id, "") == nil
}

// MarkReadFor is MarkRead restricted to recipientID's records. A record of
// another recipient fails with feed.ErrNotFound, as if it did not exist.
func (m *Mutator) MarkReadFor(ctx context.Context, recipientID, id string) error {
	if recipientID == "" {
		return ErrEmptyRecipient
	}
	return m.markRead(ctx, id, recipientID)
}

func (m *Mutator) markRead(ctx context.Context, id, owner string) error {
	if id == "" {
		m.logger.Warn("Mark read called without notification id")
		metrics.IncrementMarkRead("failed")
		return feed.ErrNotFound
	}

	if err := m.write(ctx, id, owner, m.now()); err != nil {
		m.logger.Warn("Failed to mark notification read",
			zap.String("notification_id", id),
			zap.String("owner", owner),
			zap.Error(err),
		)
		metrics.IncrementMarkRead("failed")
		return err
	}

	metrics.IncrementMarkRead("success")
	return nil
}

// MarkAllRead reads the recipient's unread set once and flags each record
// with the same readAt. Records created after that read are not included;
// the next call picks them up.
func (m *Mutator) MarkAllRead(ctx context.Context, recipientID string) BatchResult {
	res := BatchResult{RecipientID: recipientID}
	log := m.logger.With(zap.String("recipient_id", recipientID))

	if recipientID == "" {
		res.FetchErr = ErrEmptyRecipient
		log.Warn("Mark all read called without recipient id")
		return res
	}

	unread, err := m.source.Fetch(ctx, feed.Filter{RecipientID: recipientID, UnreadOnly: true})
	if err != nil {
		res.FetchErr = err
		log.Warn("Failed to read unread notifications", zap.Error(err))
		return res
	}
	metrics.BulkMarkReadSize.Observe(float64(len(unread)))

	at := m.now()
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(m.concurrency)

	for _, raw := range unread {
		if raw.ID == "" {
			continue
		}
		id := raw.ID
		res.Attempted++

		g.Go(func() error {
			err := m.write(ctx, id, recipientID, at)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failures = append(res.Failures, WriteFailure{ID: id, Err: err})
				metrics.IncrementMarkRead("failed")
				return nil
			}
			res.Succeeded++
			metrics.IncrementMarkRead("success")
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].ID < res.Failures[j].ID })

	if len(res.Failures) > 0 {
		log.Warn("Mark all read finished with failures",
			zap.Int("attempted", res.Attempted),
			zap.Int("failed", len(res.Failures)),
			zap.Strings("failed_ids", res.FailedIDs()),
		)
	} else {
		log.Info("Marked all notifications read", zap.Int("count", res.Succeeded))
	}
	return res
}

func (m *Mutator) write(ctx context.Context, id, owner string, at time.Time) error {
	return m.breaker.Execute(func() error {
		wctx, cancel := context.WithTimeout(ctx, m.writeTimeout)
		defer cancel()
		return m.source.Update(wctx, id, feed.Patch{
			IsRead: feed.Bool(true),
			ReadAt: feed.Time(at),
			Owner:  owner,
		})
	})
}

// isTransient keeps permanent errors such as unknown ids from tripping the
// breaker.
func isTransient(err error) bool {
	retryable, _ := util.IsRetryableError(err)
	return retryable
}
