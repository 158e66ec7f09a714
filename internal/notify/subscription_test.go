package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pawcare/internal/feed"
	"pawcare/internal/feed/memory"
	"pawcare/internal/model"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestManager(src feed.Source, opts ...Option) *Manager {
	opts = append([]Option{WithBackoff(time.Millisecond, 5*time.Millisecond)}, opts...)
	return NewManager(src, zap.NewNop(), opts...)
}

func TestSubscribe_DeliversInitialSnapshot(t *testing.T) {
	src := memory.New()
	seed(src, "old", "U1", at(0), false)
	seed(src, "new", "U1", at(10), true)
	seed(src, "other", "U2", at(20), false)

	var rec recorder
	sub, err := newTestManager(src).Subscribe(context.Background(), "U1", rec.onUpdate)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return rec.count() >= 1 }, waitFor, tick)
	assert.Equal(t, []string{"new", "old"}, ids(rec.last()))
	assert.Equal(t, StateDelivering, sub.State())
	assert.Equal(t, 1, sub.UnreadCount())
	assert.Equal(t, "U1", sub.RecipientID())
}

func TestSubscribe_EmptyRecipient(t *testing.T) {
	_, err := newTestManager(memory.New()).Subscribe(context.Background(), "", func([]model.Notification) {})

	assert.ErrorIs(t, err, ErrEmptyRecipient)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	src := memory.New()
	seed(src, "a", "U1", at(0), false)

	var rec recorder
	sub, err := newTestManager(src).Subscribe(context.Background(), "U1", rec.onUpdate)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)

	sub.Unsubscribe()
	frozen := rec.count()

	for i := 0; i < 5; i++ {
		src.Insert(feed.Payload{RecipientID: "U1", Title: "Order shipped", CreatedAt: at(i + 1)})
	}
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, frozen, rec.count())
	assert.Equal(t, StateClosed, sub.State())
	require.Eventually(t, func() bool { return src.Watchers() == 0 }, waitFor, tick)
}

func TestUnsubscribe_IsIdempotent(t *testing.T) {
	m := newTestManager(memory.New())
	sub, err := m.Subscribe(context.Background(), "U1", nil)
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()
	m.Close()

	assert.Equal(t, StateClosed, sub.State())
	assert.Nil(t, m.Active())
}

func TestUnsubscribe_FromInsideCallback(t *testing.T) {
	src := memory.New()
	seed(src, "a", "U1", at(0), false)
	m := newTestManager(src)

	var rec recorder
	done := make(chan struct{})
	var once sync.Once
	_, err := m.Subscribe(context.Background(), "U1", func(records []model.Notification) {
		rec.onUpdate(records)
		if sub := m.Active(); sub != nil {
			sub.Unsubscribe()
		}
		once.Do(func() { close(done) })
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("callback did not return after unsubscribing itself")
	}

	src.Insert(feed.Payload{RecipientID: "U1", CreatedAt: at(5)})
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.Nil(t, m.Active())
}

func TestSubscribe_ReleasesPreviousSubscription(t *testing.T) {
	src := memory.New()
	seed(src, "u1", "U1", at(0), false)
	seed(src, "u2", "U2", at(0), false)
	m := newTestManager(src)

	var first, second recorder
	sub1, err := m.Subscribe(context.Background(), "U1", first.onUpdate)
	require.NoError(t, err)
	sub2, err := m.Subscribe(context.Background(), "U2", second.onUpdate)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, StateClosed, sub1.State())
	assert.Same(t, sub2, m.Active())
	require.Eventually(t, func() bool { return second.count() >= 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return src.Watchers() == 1 }, waitFor, tick)

	frozen := first.count()
	src.Insert(feed.Payload{RecipientID: "U1", CreatedAt: at(1)})
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, frozen, first.count())

	// Unsubscribing a released handle leaves the new one in place.
	sub1.Unsubscribe()
	assert.Same(t, sub2, m.Active())
}

func TestSubscribe_ReplacesSnapshotWholesale(t *testing.T) {
	src := memory.New()
	seed(src, "1", "U1", at(0), false)

	var rec recorder
	sub, err := newTestManager(src).Subscribe(context.Background(), "U1", rec.onUpdate)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)

	require.NoError(t, src.Update(context.Background(), "1", feed.Patch{IsRead: feed.Bool(true), ReadAt: at(2)}))
	seed(src, "2", "U1", at(1), false)

	require.Eventually(t, func() bool { return len(rec.last()) == 2 }, waitFor, tick)
	got := rec.last()
	assert.Equal(t, []string{"2", "1"}, ids(got))
	assert.True(t, got[1].IsRead)
	assert.NotNil(t, got[1].ReadAt)
	assert.False(t, got[0].IsRead)
	assert.Equal(t, got, sub.Records())
}

func TestSubscribe_FillsCreatedAtWithClock(t *testing.T) {
	src := memory.New()
	seed(src, "old", "U1", at(0), false)
	src.InsertWithID("pending", feed.Payload{RecipientID: "U1"})
	now := baseTime.Add(time.Hour)

	var rec recorder
	sub, err := newTestManager(src, WithClock(fixedClock(now))).Subscribe(context.Background(), "U1", rec.onUpdate)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return rec.count() >= 1 }, waitFor, tick)
	got := rec.last()
	assert.Equal(t, []string{"pending", "old"}, ids(got))
	assert.True(t, got[0].CreatedAt.Equal(now))
}

func TestSubscribe_ResubscribesAfterTransientError(t *testing.T) {
	src := memory.New()
	seed(src, "a", "U1", at(0), false)

	var mu sync.Mutex
	var reported []error
	onErr := func(recipientID string, err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err)
	}

	var rec recorder
	sub, err := newTestManager(src, WithErrorHandler(onErr)).Subscribe(context.Background(), "U1", rec.onUpdate)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)

	src.Break("U1", feed.ErrStreamClosed)
	require.Eventually(t, func() bool { return src.Watchers() == 1 }, waitFor, tick)

	src.Insert(feed.Payload{RecipientID: "U1", CreatedAt: at(5)})
	require.Eventually(t, func() bool { return len(sub.Records()) == 2 }, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, reported)
	assert.ErrorIs(t, reported[0], feed.ErrStreamClosed)
}

func TestSubscribe_RetriesFailedWatch(t *testing.T) {
	src := memory.New()
	seed(src, "a", "U1", at(0), false)
	src.FailNextWatch(errors.New("dial tcp 10.0.0.7:6379: connection refused"))

	var rec recorder
	sub, err := newTestManager(src).Subscribe(context.Background(), "U1", rec.onUpdate)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return rec.count() >= 1 }, waitFor, tick)
	assert.Equal(t, []string{"a"}, ids(rec.last()))
}

func TestSubscribe_PermissionDeniedDeliversEmptySnapshot(t *testing.T) {
	src := memory.New()
	seed(src, "a", "U1", at(0), false)
	src.FailNextWatch(feed.ErrPermissionDenied)

	reported := make(chan error, 1)
	var rec recorder
	sub, err := newTestManager(src, WithErrorHandler(func(_ string, err error) { reported <- err })).
		Subscribe(context.Background(), "U1", rec.onUpdate)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case err := <-reported:
		assert.ErrorIs(t, err, feed.ErrPermissionDenied)
	case <-time.After(waitFor):
		t.Fatal("error handler not called")
	}
	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)
	assert.Empty(t, rec.last())

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, src.Watchers())
}

func TestSubscribe_CallbackPanicIsContained(t *testing.T) {
	src := memory.New()
	seed(src, "a", "U1", at(0), false)

	calls := make(chan struct{}, 4)
	sub, err := newTestManager(src).Subscribe(context.Background(), "U1", func([]model.Notification) {
		calls <- struct{}{}
		panic("screen already disposed")
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	<-calls
	src.Insert(feed.Payload{RecipientID: "U1", CreatedAt: at(1)})

	select {
	case <-calls:
	case <-time.After(waitFor):
		t.Fatal("delivery stopped after a panicking callback")
	}
	assert.Len(t, sub.Records(), 2)
}

func TestUnsubscribe_WaitsForRunningCallback(t *testing.T) {
	src := memory.New()
	seed(src, "a", "U1", at(0), false)
	m := newTestManager(src)

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	var once sync.Once
	sub, err := m.Subscribe(context.Background(), "U1", func([]model.Notification) {
		once.Do(func() { close(entered) })
		<-release
		// The callback may still look at the manager while being torn down.
		_ = m.Active()
		finished.Store(true)
	})
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("callback not called")
	}

	returned := make(chan struct{})
	go func() {
		sub.Unsubscribe()
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("Unsubscribe returned while the callback was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-returned:
	case <-time.After(waitFor):
		t.Fatal("Unsubscribe did not return after the callback finished")
	}
	assert.True(t, finished.Load())
	assert.Equal(t, StateClosed, sub.State())
}

func TestManagerClose_WaitsForRunningCallback(t *testing.T) {
	src := memory.New()
	seed(src, "a", "U1", at(0), false)
	m := newTestManager(src)

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	var once sync.Once
	_, err := m.Subscribe(context.Background(), "U1", func([]model.Notification) {
		once.Do(func() { close(entered) })
		<-release
		_ = m.Active()
		finished.Store(true)
	})
	require.NoError(t, err)
	<-entered

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()
	time.Sleep(30 * time.Millisecond)
	close(release)

	select {
	case <-closed:
	case <-time.After(waitFor):
		t.Fatal("Close deadlocked with a callback calling Active")
	}
	assert.True(t, finished.Load())
	assert.Nil(t, m.Active())
}
