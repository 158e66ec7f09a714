package db

import "time"

// Notification 表示 notifications 表的完整结构
//
//	CREATE TABLE notifications (
//	    id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
//	    seq          BIGSERIAL,
//	    recipient_id TEXT NOT NULL,
//	    title        TEXT NOT NULL DEFAULT '',
//	    body         TEXT NOT NULL DEFAULT '',
//	    link         TEXT,
//	    is_read      BOOLEAN,
//	    read_at      TIMESTAMPTZ,
//	    created_at   TIMESTAMPTZ,
//	    event_id     TEXT UNIQUE
//	);
//	CREATE INDEX notifications_recipient_idx ON notifications (recipient_id, is_read);
//
// is_read and created_at are nullable: producers may write before the server
// timestamp is assigned.
type Notification struct {
	ID          string     `json:"id"`
	RecipientID string     `json:"recipient_id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Link        *string    `json:"link,omitempty"`
	IsRead      *bool      `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   *time.Time `json:"created_at"`
	EventID     *string    `json:"event_id,omitempty"`
}
