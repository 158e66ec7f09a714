package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper remembers events that were already handled. The key is written
// only after the event's side effect is durable, so a crash mid-handling
// never hides the redelivery.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// Seen reports whether handler already finished the event. Redis errors
// count as not seen; the caller's write must be idempotent on its own.
func (d *Deduper) Seen(ctx context.Context, handler, key string) bool {
	dedupKey := FormatDedupKey(handler, key)

	n, err := d.rdb.Exists(ctx, dedupKey).Result()
	if err != nil {
		// Redis 不可用时不阻止处理，由数据库唯一约束兜底
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("handler", handler),
			zap.String("event_key", key),
			zap.Error(err),
		)
		return false
	}
	if n > 0 {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.String("dedup_key", dedupKey),
		)
		return true
	}
	return false
}

// Mark records the event as finished for ttl.
func (d *Deduper) Mark(ctx context.Context, handler, key string) {
	if err := d.rdb.Set(ctx, FormatDedupKey(handler, key), 1, d.ttl).Err(); err != nil {
		d.logger.Warn("Failed to record dedup key",
			zap.String("handler", handler),
			zap.String("event_key", key),
			zap.Error(err),
		)
	}
}

func FormatDedupKey(handler, key string) string {
	return fmt.Sprintf("dedup:%s:%s", handler, key)
}
