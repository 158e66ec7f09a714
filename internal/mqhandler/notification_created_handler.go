package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	dbcontracts "pawcare/contracts/db"
	mqcontracts "pawcare/contracts/mq"
	"pawcare/pkg/logger"
	"pawcare/pkg/metrics"
	"pawcare/pkg/util"
)

const (
	handlerName = "notification_created"
	maxRetries  = 5 // 最大重试次数
)

var errMissingRecipient = errors.New("notification.created without recipient_id")

type NotificationStore interface {
	Insert(ctx context.Context, n dbcontracts.Notification) (id string, inserted bool, err error)
}

// ChangeSignaler wakes live subscriptions of a recipient.
type ChangeSignaler interface {
	Signal(ctx context.Context, recipientID string) error
}

// EventDeduper skips events already stored. Mark is called only after the
// row is durable.
type EventDeduper interface {
	Seen(ctx context.Context, handler, key string) bool
	Mark(ctx context.Context, handler, key string)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DeadLetterPublisher interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

type NotificationCreatedHandler struct {
	store        NotificationStore
	signaler     ChangeSignaler
	deduper      EventDeduper
	retryCounter RetryCounter
	dlq          DeadLetterPublisher
	logger       *zap.Logger
}

func NewNotificationCreatedHandler(
	store NotificationStore,
	signaler ChangeSignaler,
	deduper EventDeduper,
	retryCounter RetryCounter,
	dlq DeadLetterPublisher,
	logger *zap.Logger,
) *NotificationCreatedHandler {
	return &NotificationCreatedHandler{
		store:        store,
		signaler:     signaler,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		logger:       logger,
	}
}

// Handle stores a produced notification and wakes the recipient's live feeds.
// Returns an error only when the consumer should nack and redeliver.
func (h *NotificationCreatedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.NotificationCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// JSON decode 错误 - 不可重试，发送到 DLQ
		log.Error("Failed to unmarshal NotificationCreatedPayload (non-retryable, sending to DLQ)",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		h.deadLetter(log, raw, fmt.Errorf("json_unmarshal_error: %w", err))
		return nil
	}
	if p.RecipientID == "" {
		log.Error("Dropping notification without recipient", zap.String("event_id", p.EventID))
		h.deadLetter(log, raw, errMissingRecipient)
		return nil
	}

	log = log.With(
		zap.String("event_id", p.EventID),
		zap.String("recipient_id", p.RecipientID),
	)
	log.Info("Handling notification.created event")

	// Redis 去重：event_id 为空时只依赖数据库
	if p.EventID != "" && h.deduper.Seen(ctx, handlerName, p.EventID) {
		metrics.IncrementNotificationIngested("duplicate")
		return nil
	}

	id, inserted, err := h.store.Insert(ctx, toRow(p))
	if err != nil {
		return h.onInsertError(ctx, log, p, raw, err)
	}
	if p.EventID != "" {
		// 入库（或唯一约束命中）之后才记去重键
		h.deduper.Mark(ctx, handlerName, p.EventID)
		_ = h.retryCounter.Reset(ctx, util.FormatRetryKey(handlerName, p.EventID))
	}
	if !inserted {
		// 数据库唯一约束命中：之前已入库
		log.Info("Notification already stored, skipping")
		metrics.IncrementNotificationIngested("duplicate")
		return nil
	}

	metrics.IncrementNotificationIngested("inserted")

	// 信号失败不影响入库结果，订阅方会在下一次变更时追上
	if err := h.signaler.Signal(ctx, p.RecipientID); err != nil {
		log.Warn("Failed to signal recipient feed", zap.String("notification_id", id), zap.Error(err))
	}

	log.Info("Notification stored", zap.String("notification_id", id))
	return nil
}

func (h *NotificationCreatedHandler) onInsertError(ctx context.Context, log *zap.Logger, p mqcontracts.NotificationCreatedPayload, raw []byte, err error) error {
	isRetryable, errType := util.IsRetryableError(err)
	log.Error("Failed to insert notification",
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Error(err),
	)

	if !isRetryable {
		metrics.IncrementNotificationIngested("failed")
		h.deadLetter(log, raw, err)
		return nil
	}
	if p.EventID == "" {
		return err
	}

	retryKey := util.FormatRetryKey(handlerName, p.EventID)
	retryCount, cerr := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if cerr != nil {
		// Redis 错误不影响处理，交给 MQ 重投
		log.Warn("Failed to get retry count, continuing anyway", zap.Error(cerr))
		return err
	}

	if !util.ShouldRetry(retryCount, maxRetries, isRetryable) {
		log.Warn("Max retries exceeded, sending to DLQ", zap.Int64("retry_count", retryCount))
		metrics.IncrementNotificationIngested("failed")
		h.deadLetter(log, raw, err)
		_ = h.retryCounter.Reset(ctx, retryKey)
		return nil
	}

	return err
}

func (h *NotificationCreatedHandler) deadLetter(log *zap.Logger, raw []byte, cause error) {
	if err := h.dlq.PublishToDLQ(mqcontracts.RoutingKeyNotificationCreated, raw, cause.Error()); err != nil {
		log.Error("Failed to publish to DLQ", zap.Error(err))
	}
}

func toRow(p mqcontracts.NotificationCreatedPayload) dbcontracts.Notification {
	row := dbcontracts.Notification{
		RecipientID: p.RecipientID,
		Title:       p.Title,
		Body:        p.Body,
		Link:        p.Link,
		CreatedAt:   p.CreatedAt,
	}
	if p.EventID != "" {
		eventID := p.EventID
		row.EventID = &eventID
	}
	return row
}
