package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawcare/internal/feed"
)

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func at(minutes int) *time.Time {
	t := baseTime.Add(time.Duration(minutes) * time.Minute)
	return &t
}

func raw(id, recipient string, createdAt *time.Time) feed.RawRecord {
	return feed.RawRecord{
		ID: id,
		Payload: feed.Payload{
			RecipientID: recipient,
			Title:       "Booking " + id,
			CreatedAt:   createdAt,
		},
	}
}

func TestNormalize_SortsNewestFirst(t *testing.T) {
	snapshot := []feed.RawRecord{
		raw("a", "U1", at(5)),
		raw("b", "U1", at(40)),
		raw("c", "U1", at(-10)),
		raw("d", "U1", at(12)),
		raw("e", "U1", at(40)),
	}

	got, dropped := Normalize(snapshot, baseTime.Add(time.Hour))

	require.Zero(t, dropped)
	require.Len(t, got, len(snapshot))
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i-1].CreatedAt.Before(got[i].CreatedAt),
			"record %d (%s) is older than record %d (%s)", i-1, got[i-1].ID, i, got[i].ID)
	}
}

func TestNormalize_StableOnEqualCreatedAt(t *testing.T) {
	snapshot := []feed.RawRecord{
		raw("first", "U1", at(1)),
		raw("second", "U1", at(1)),
		raw("third", "U1", at(1)),
	}

	got, _ := Normalize(snapshot, baseTime)

	assert.Equal(t, []string{"first", "second", "third"}, ids(got))

	again, _ := Normalize(snapshot, baseTime)
	assert.Equal(t, got, again)
}

func TestNormalize_MissingCreatedAtBecomesNow(t *testing.T) {
	now := baseTime.Add(time.Hour)
	snapshot := []feed.RawRecord{
		raw("old", "U1", at(1)),
		raw("pending", "U1", nil),
		raw("newer", "U1", at(30)),
	}

	got, _ := Normalize(snapshot, now)

	require.Len(t, got, 3)
	assert.Equal(t, "pending", got[0].ID)
	assert.True(t, got[0].CreatedAt.Equal(now))
	assert.Equal(t, []string{"pending", "newer", "old"}, ids(got))
}

func TestNormalize_MissingIsReadDefaultsToUnread(t *testing.T) {
	got, _ := Normalize([]feed.RawRecord{raw("a", "U1", at(0))}, baseTime)

	require.Len(t, got, 1)
	assert.False(t, got[0].IsRead)
	assert.Nil(t, got[0].ReadAt)
}

func TestNormalize_EnvelopeIDWins(t *testing.T) {
	r := raw("envelope-id", "U1", at(0))
	r.Payload.ID = ptr("payload-id")

	got, _ := Normalize([]feed.RawRecord{r}, baseTime)

	require.Len(t, got, 1)
	assert.Equal(t, "envelope-id", got[0].ID)
}

func TestNormalize_DropsMalformedRecords(t *testing.T) {
	snapshot := []feed.RawRecord{
		raw("", "U1", at(0)),
		raw("ok", "U1", at(1)),
		raw("orphan", "", at(2)),
	}

	got, dropped := Normalize(snapshot, baseTime)

	assert.Equal(t, 2, dropped)
	assert.Equal(t, []string{"ok"}, ids(got))
}

func TestNormalize_ReadAtPresentIffRead(t *testing.T) {
	now := baseTime.Add(time.Hour)

	readWithTime := raw("read-with-time", "U1", at(0))
	readWithTime.Payload.IsRead = feed.Bool(true)
	readWithTime.Payload.ReadAt = at(10)

	readWithoutTime := raw("read-without-time", "U1", at(1))
	readWithoutTime.Payload.IsRead = feed.Bool(true)

	unreadWithTime := raw("unread-with-time", "U1", at(2))
	unreadWithTime.Payload.IsRead = feed.Bool(false)
	unreadWithTime.Payload.ReadAt = at(3)

	got, _ := Normalize([]feed.RawRecord{readWithTime, readWithoutTime, unreadWithTime}, now)
	byID := make(map[string]int)
	for i, n := range got {
		byID[n.ID] = i
	}

	r := got[byID["read-with-time"]]
	require.NotNil(t, r.ReadAt)
	assert.True(t, r.ReadAt.Equal(*at(10)))

	r = got[byID["read-without-time"]]
	require.NotNil(t, r.ReadAt)
	assert.True(t, r.ReadAt.Equal(now))

	assert.Nil(t, got[byID["unread-with-time"]].ReadAt)
}

func TestNormalize_CopiesLink(t *testing.T) {
	link := "pawcare://bookings/42"
	r := raw("a", "U1", at(0))
	r.Payload.Link = &link

	got, _ := Normalize([]feed.RawRecord{r}, baseTime)
	link = "changed"

	require.NotNil(t, got[0].Link)
	assert.Equal(t, "pawcare://bookings/42", *got[0].Link)
}

func TestUnreadCount(t *testing.T) {
	read := raw("read", "U1", at(0))
	read.Payload.IsRead = feed.Bool(true)

	got, _ := Normalize([]feed.RawRecord{read, raw("u1", "U1", at(1)), raw("u2", "U1", at(2))}, baseTime)

	assert.Equal(t, 2, UnreadCount(got))
	assert.Zero(t, UnreadCount(nil))
}

func ptr(s string) *string { return &s }
