package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	dbcontracts "pawcare/contracts/db"
	"pawcare/pkg/metrics"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores a producer record. A repeated eventID is a no-op and returns
// inserted=false.
func (r *NotificationRepository) Insert(ctx context.Context, n dbcontracts.Notification) (id string, inserted bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "notifications", time.Since(start)) }()

	r.logger.Debug("Inserting notification",
		zap.String("recipient_id", n.RecipientID),
		zap.Stringp("event_id", n.EventID),
	)

	query := `
        INSERT INTO notifications (recipient_id, title, body, link, is_read, created_at, event_id)
        VALUES ($1, $2, $3, $4, COALESCE($5, FALSE), COALESCE($6, NOW()), $7)
        ON CONFLICT (event_id) DO NOTHING
        RETURNING id
    `
	err = r.db.QueryRow(ctx, query,
		n.RecipientID, n.Title, n.Body, n.Link, n.IsRead, n.CreatedAt, n.EventID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		r.logger.Error("Failed to insert notification", zap.Error(err))
		return "", false, err
	}

	r.logger.Info("Notification inserted successfully",
		zap.String("id", id),
		zap.String("recipient_id", n.RecipientID),
	)
	return id, true, nil
}

// ListByRecipient returns the recipient's rows in insertion order (the
// caller sorts). unreadOnly keeps rows whose is_read is not TRUE.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool) ([]dbcontracts.Notification, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("list", "notifications", time.Since(start)) }()

	query := `
        SELECT id, recipient_id, title, body, link, is_read, read_at, created_at
        FROM notifications
        WHERE recipient_id = $1 AND ($2 = FALSE OR is_read IS NOT TRUE)
        ORDER BY seq ASC
    `
	rows, err := r.db.Query(ctx, query, recipientID, unreadOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dbcontracts.Notification
	for rows.Next() {
		var n dbcontracts.Notification
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Title,
			&n.Body,
			&n.Link,
			&n.IsRead,
			&n.ReadAt,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead applies a read-state patch. read_at is only written once. A
// non-empty owner limits the update to that recipient's row; a row of
// anyone else reads as not found. Returns the owning recipient so the
// caller can signal the change.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, owner string, isRead *bool, readAt *time.Time) (string, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("update", "notifications", time.Since(start)) }()

	query := `
        UPDATE notifications
        SET is_read = COALESCE($2, is_read),
            read_at = COALESCE(read_at, $3)
        WHERE id = $1 AND ($4 = '' OR recipient_id = $4)
        RETURNING recipient_id
    `
	var recipientID string
	err := r.db.QueryRow(ctx, query, id, isRead, readAt, owner).Scan(&recipientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotificationNotFound
	}
	if err != nil {
		return "", err
	}
	return recipientID, nil
}

func (r *NotificationRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
