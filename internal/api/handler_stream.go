package api

import (
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

const defaultHeartbeat = 25 * time.Second

type StreamHandler struct {
	source    feed.Source
	logger    *zap.Logger
	opts      []notify.Option
	heartbeat time.Duration
}

func NewStreamHandler(source feed.Source, logger *zap.Logger, opts ...notify.Option) *StreamHandler {
	return &StreamHandler{
		source:    source,
		logger:    logger,
		opts:      opts,
		heartbeat: defaultHeartbeat,
	}
}

type feedErrorEvent struct {
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

// Stream handles GET /notifications/stream. Each connection owns one
// subscription; every snapshot is sent whole as a "snapshot" event.
func (h *StreamHandler) Stream(c *gin.Context) {
	recipientID, ok := recipientFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	log := logger.WithRecipient(ctx, h.logger, recipientID)

	if _, ok := c.Writer.(http.Flusher); !ok {
		log.Error("SSE stream does not support flushing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	// 只保留最新快照，慢连接不会阻塞投递
	updates := make(chan []model.Notification, 1)
	feedErrs := make(chan feedErrorEvent, 1)

	opts := append([]notify.Option{notify.WithErrorHandler(func(_ string, err error) {
		retryable, kind := util.IsRetryableError(err)
		offer(feedErrs, feedErrorEvent{Kind: kind, Retryable: retryable})
	})}, h.opts...)
	manager := notify.NewManager(h.source, h.logger, opts...)
	defer manager.Close()

	if _, err := manager.Subscribe(ctx, recipientID, func(records []model.Notification) {
		offer(updates, records)
	}); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return
		case <-heartbeat.C:
			if _, err := c.Writer.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			c.Writer.Flush()
		case records := <-updates:
			c.SSEvent("snapshot", listResponse{
				Notifications: records,
				UnreadCount:   notify.UnreadCount(records),
			})
			c.Writer.Flush()
		case ev := <-feedErrs:
			c.SSEvent("feed_error", ev)
			c.Writer.Flush()
		}
	}
}

// offer replaces any pending value so the channel always holds the latest.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
