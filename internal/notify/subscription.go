package notify

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pawcare/internal/feed"
	"pawcare/internal/model"
	"pawcare/pkg/metrics"
	"pawcare/pkg/util"
)

var ErrEmptyRecipient = errors.New("notify: empty recipient id")

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// State is the lifecycle of a Subscription: open -> delivering -> closed.
type State int32

const (
	StateOpen State = iota
	StateDelivering
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDelivering:
		return "delivering"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type Option func(*Manager)

// WithErrorHandler receives every feed error of the active subscription.
// It is called from the subscription's goroutine and must return promptly.
func WithErrorHandler(fn func(recipientID string, err error)) Option {
	return func(m *Manager) { m.onError = fn }
}

// WithBackoff bounds the delay between resubscription attempts.
func WithBackoff(lo, hi time.Duration) Option {
	return func(m *Manager) {
		if lo > 0 {
			m.minBackoff = lo
		}
		if hi > 0 {
			m.maxBackoff = hi
		}
		if m.maxBackoff < m.minBackoff {
			m.maxBackoff = m.minBackoff
		}
	}
}

// WithClock replaces time.Now for normalization defaults.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the single live subscription of one consumer (a screen, an
// SSE connection). Subscribing again releases the previous subscription
// first.
type Manager struct {
	source     feed.Source
	logger     *zap.Logger
	onError    func(recipientID string, err error)
	minBackoff time.Duration
	maxBackoff time.Duration
	now        func() time.Time

	mu     sync.Mutex
	active *Subscription
}

func NewManager(source feed.Source, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		source:     source,
		logger:     logger,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe opens a live query for recipientID and calls onUpdate with every
// normalized snapshot. Feed failures never surface here: they go to the
// error handler and are retried or turned into an empty snapshot.
func (m *Manager) Subscribe(ctx context.Context, recipientID string, onUpdate func([]model.Notification)) (*Subscription, error) {
	if recipientID == "" {
		return nil, ErrEmptyRecipient
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		m:           m,
		recipientID: recipientID,
		onUpdate:    onUpdate,
		cancel:      cancel,
		mailbox:     make(chan []feed.RawRecord, 1),
		logger:      m.logger.With(zap.String("recipient_id", recipientID)),
	}
	// close waits for a running callback, which may call back into m; do it
	// outside m.mu.
	m.mu.Lock()
	prev := m.active
	m.active = sub
	m.mu.Unlock()
	if prev != nil {
		prev.close()
	}
	metrics.ActiveSubscriptions.Inc()

	go sub.pump(ctx)
	go sub.dispatch(ctx)

	sub.logger.Info("Notification subscription opened")
	return sub, nil
}

// Active returns the current subscription, or nil.
func (m *Manager) Active() *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Close releases the active subscription, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	prev := m.active
	m.active = nil
	m.mu.Unlock()

	if prev != nil {
		prev.close()
	}
}

func (m *Manager) release(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == sub {
		m.active = nil
	}
}

// Subscription is the handle of one live query.
type Subscription struct {
	m           *Manager
	recipientID string
	onUpdate    func([]model.Notification)
	cancel      context.CancelFunc
	logger      *zap.Logger

	cache Cache
	state atomic.Int32

	// mailbox holds at most one undelivered snapshot; a newer one replaces it.
	mailbox chan []feed.RawRecord

	deliverMu sync.Mutex
	// callbackG is the goroutine running onUpdate, 0 when none is.
	callbackG atomic.Uint64
	closed    atomic.Bool
}

func (s *Subscription) RecipientID() string { return s.recipientID }

func (s *Subscription) State() State { return State(s.state.Load()) }

// Records returns the latest delivered snapshot.
func (s *Subscription) Records() []model.Notification { return s.cache.Records() }

func (s *Subscription) UnreadCount() int { return s.cache.UnreadCount() }

// Unsubscribe stops delivery. Once it returns no new onUpdate call starts.
// It may be called any number of times, including from inside onUpdate.
func (s *Subscription) Unsubscribe() {
	s.close()
	s.m.release(s)
}

func (s *Subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		s.cancel()
		s.state.Store(int32(StateClosed))
		metrics.ActiveSubscriptions.Dec()
		s.logger.Info("Notification subscription closed")
	}
	// Wait out a callback that started before the close, unless we are
	// that callback.
	if g := s.callbackG.Load(); g == 0 || g != goroutineID() {
		s.deliverMu.Lock()
		s.deliverMu.Unlock()
	}
}

// pump keeps a live query open until ctx ends, resubscribing after
// retryable failures.
func (s *Subscription) pump(ctx context.Context) {
	f := feed.Filter{RecipientID: s.recipientID}
	backoff := s.m.minBackoff

	for {
		events, err := s.m.source.Watch(ctx, f)
		if err == nil {
			var received bool
			received, err = s.consume(ctx, events)
			if received {
				backoff = s.m.minBackoff
			}
		}
		if ctx.Err() != nil {
			return
		}
		if !s.handleError(err) {
			return
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, s.m.maxBackoff)
		metrics.Resubscriptions.Inc()
		s.logger.Info("Resubscribing to notification feed")
	}
}

// consume forwards snapshots to the mailbox until the stream ends. It
// reports whether any snapshot arrived and the error that ended the stream.
func (s *Subscription) consume(ctx context.Context, events <-chan feed.Event) (bool, error) {
	received := false
	for ev := range events {
		if ev.Err != nil {
			return received, ev.Err
		}
		received = true
		s.post(ev.Snapshot)
	}
	if ctx.Err() != nil {
		return received, ctx.Err()
	}
	return received, feed.ErrStreamClosed
}

// handleError reports err and returns whether the feed should be retried.
func (s *Subscription) handleError(err error) bool {
	retryable, kind := util.IsRetryableError(err)
	metrics.IncrementFeedError(kind)
	s.logger.Warn("Notification feed error",
		zap.String("kind", kind),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)

	if s.m.onError != nil && !s.closed.Load() {
		s.m.onError(s.recipientID, err)
	}
	if !retryable {
		s.post([]feed.RawRecord{})
	}
	return retryable
}

func (s *Subscription) post(snapshot []feed.RawRecord) {
	select {
	case <-s.mailbox:
	default:
	}
	s.mailbox <- snapshot
}

func (s *Subscription) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-s.mailbox:
			s.deliver(snapshot)
		}
	}
}

func (s *Subscription) deliver(snapshot []feed.RawRecord) {
	records, dropped := Normalize(snapshot, s.m.now())
	if dropped > 0 {
		metrics.MalformedRecordsDropped.Add(float64(dropped))
		s.logger.Warn("Dropped malformed notification records", zap.Int("dropped", dropped))
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.closed.Load() {
		return
	}
	s.cache.Replace(records)
	s.state.CompareAndSwap(int32(StateOpen), int32(StateDelivering))
	metrics.SnapshotsDelivered.Inc()

	if s.onUpdate == nil {
		return
	}
	s.callbackG.Store(goroutineID())
	defer s.callbackG.Store(0)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Notification update handler panic recovered", zap.Any("panic", r))
		}
	}()
	s.onUpdate(s.cache.Records())
}

// goroutineID parses the id from the "goroutine N [" stack header.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(string(fields[1]), 10, 64)
	return id
}
