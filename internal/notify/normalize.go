package notify

import (
	"sort"
	"time"

	"pawcare/internal/feed"
	"pawcare/internal/model"
)

// Normalize turns a raw snapshot into the ordered records shown to the user.
//
// Missing createdAt becomes now, missing isRead becomes false, and the
// envelope id always wins over any id in the payload. Records without an id
// or recipient are dropped and counted. The result is sorted newest first;
// records with equal createdAt keep their snapshot order.
func Normalize(snapshot []feed.RawRecord, now time.Time) ([]model.Notification, int) {
	out := make([]model.Notification, 0, len(snapshot))
	dropped := 0

	for _, raw := range snapshot {
		p := raw.Payload
		if raw.ID == "" || p.RecipientID == "" {
			dropped++
			continue
		}

		n := model.Notification{
			ID:          raw.ID,
			RecipientID: p.RecipientID,
			Title:       p.Title,
			Body:        p.Body,
			CreatedAt:   now,
		}
		if p.Link != nil {
			link := *p.Link
			n.Link = &link
		}
		if p.CreatedAt != nil && !p.CreatedAt.IsZero() {
			n.CreatedAt = *p.CreatedAt
		}
		if p.IsRead != nil {
			n.IsRead = *p.IsRead
		}
		if n.IsRead {
			readAt := now
			if p.ReadAt != nil && !p.ReadAt.IsZero() {
				readAt = *p.ReadAt
			}
			n.ReadAt = &readAt
		}

		out = append(out, n)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, dropped
}

// UnreadCount returns how many records are still unread.
func UnreadCount(records []model.Notification) int {
	n := 0
	for _, r := range records {
		if !r.IsRead {
			n++
		}
	}
	return n
}
