package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pawcare/internal/feed"
	"pawcare/internal/model"
	"pawcare/internal/notify"
	"pawcare/pkg/logger"
	"pawcare/pkg/util"
)

type NotificationHandler struct {
	source  feed.Source
	mutator *notify.Mutator
	logger  *zap.Logger
	now     func() time.Time
}

func NewNotificationHandler(source feed.Source, mutator *notify.Mutator, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		source:  source,
		mutator: mutator,
		logger:  logger,
		now:     time.Now,
	}
}

type listResponse struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
}

// List handles GET /notifications
func (h *NotificationHandler) List(c *gin.Context) {
	recipientID, ok := recipientFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	filter := feed.Filter{RecipientID: recipientID, UnreadOnly: c.Query("unread") == "true"}
	snapshot, err := h.source.Fetch(ctx, filter)
	if err != nil {
		status := statusForFeedError(err)
		logger.WithRecipient(ctx, h.logger, recipientID).Error("Failed to fetch notifications",
			zap.Int("status", status),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "failed to fetch notifications"})
		return
	}

	records, _ := notify.Normalize(snapshot, h.now())
	c.JSON(http.StatusOK, listResponse{
		Notifications: records,
		UnreadCount:   notify.UnreadCount(records),
	})
}

// MarkRead handles POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	recipientID, ok := recipientFrom(c)
	if !ok {
		return
	}
	id := c.Param("id")

	// 只能标记自己的通知；别人的记录按不存在处理
	if err := h.mutator.MarkReadFor(c.Request.Context(), recipientID, id); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, feed.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"id": id, "ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "ok": true})
}

type batchResponse struct {
	RecipientID string   `json:"recipientId"`
	Attempted   int      `json:"attempted"`
	Succeeded   int      `json:"succeeded"`
	FailedIDs   []string `json:"failedIds"`
	OK          bool     `json:"ok"`
}

// MarkAllRead handles POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	recipientID, ok := recipientFrom(c)
	if !ok {
		return
	}

	res := h.mutator.MarkAllRead(c.Request.Context(), recipientID)
	if res.FetchErr != nil {
		c.JSON(statusForFeedError(res.FetchErr), gin.H{"error": "failed to read unread notifications"})
		return
	}

	c.JSON(http.StatusOK, batchResponse{
		RecipientID: res.RecipientID,
		Attempted:   res.Attempted,
		Succeeded:   res.Succeeded,
		FailedIDs:   res.FailedIDs(),
		OK:          res.OK(),
	})
}

func statusForFeedError(err error) int {
	switch {
	case errors.Is(err, feed.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, context.Canceled):
		return 499
	}
	if retryable, _ := util.IsRetryableError(err); retryable {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
