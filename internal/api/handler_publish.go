package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "pawcare/contracts/mq"
	"pawcare/pkg/logger"
)

// EventPublisher sends an event to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type PublishHandler struct {
	publisher EventPublisher
	logger    *zap.Logger
}

func NewPublishHandler(publisher EventPublisher, logger *zap.Logger) *PublishHandler {
	return &PublishHandler{
		publisher: publisher,
		logger:    logger,
	}
}

// Publish handles POST /notifications
func (h *PublishHandler) Publish(c *gin.Context) {
	var req struct {
		EventID     string  `json:"eventId"`
		RecipientID string  `json:"recipientId"`
		Title       string  `json:"title"`
		Body        string  `json:"body"`
		Link        *string `json:"link"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if strings.TrimSpace(req.RecipientID) == "" || strings.TrimSpace(req.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipientId and title are required"})
		return
	}
	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}

	ctx := c.Request.Context()
	payload := mqcontracts.NotificationCreatedPayload{
		EventID:     req.EventID,
		RecipientID: req.RecipientID,
		Title:       req.Title,
		Body:        req.Body,
		Link:        req.Link,
	}
	if err := h.publisher.Publish(ctx, mqcontracts.RoutingKeyNotificationCreated, payload); err != nil {
		logger.WithRecipient(ctx, h.logger, req.RecipientID).Error("Failed to publish notification.created",
			zap.String("event_id", req.EventID),
			zap.Error(err),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to publish notification"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"eventId": req.EventID,
		"status":  "queued",
	})
}
