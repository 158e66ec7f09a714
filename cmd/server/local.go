package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	mqcontracts "pawcare/contracts/mq"
	"pawcare/internal/feed"
	"pawcare/internal/feed/memory"
)

// localPublisher stands in for the broker when the server runs on the
// in-memory feed: published notifications land in the source directly.
type localPublisher struct {
	source *memory.Source
	logger *zap.Logger
}

func (p *localPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	n, ok := payload.(mqcontracts.NotificationCreatedPayload)
	if !ok || routingKey != mqcontracts.RoutingKeyNotificationCreated {
		return fmt.Errorf("local publisher: unsupported event %s", routingKey)
	}

	createdAt := n.CreatedAt
	if createdAt == nil {
		createdAt = feed.Time(time.Now())
	}
	id := p.source.Insert(feed.Payload{
		RecipientID: n.RecipientID,
		Title:       n.Title,
		Body:        n.Body,
		Link:        n.Link,
		IsRead:      feed.Bool(false),
		CreatedAt:   createdAt,
	})
	p.logger.Debug("Notification stored in memory feed",
		zap.String("notification_id", id),
		zap.String("recipient_id", n.RecipientID),
	)
	return nil
}

type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
