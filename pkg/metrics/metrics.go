package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"sql"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 推送给订阅者的快照数量
	SnapshotsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_snapshots_delivered_total",
			Help: "Total number of normalized snapshots delivered to subscribers",
		},
	)

	// 归一化时丢弃的畸形记录
	MalformedRecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_malformed_records_dropped_total",
			Help: "Total number of records dropped from snapshots for missing identity fields",
		},
	)

	// 订阅流错误
	FeedErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_feed_errors_total",
			Help: "Total number of live feed errors",
		},
		[]string{"kind"},
	)

	Resubscriptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_resubscriptions_total",
			Help: "Total number of live feed resubscriptions after a transient error",
		},
	)

	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_active_subscriptions",
			Help: "Number of open notification subscriptions",
		},
	)

	// 已读标记结果
	MarkReadCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_mark_read_total",
			Help: "Total number of read-state writes",
		},
		[]string{"status"}, // status: success, failed
	)

	BulkMarkReadSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notify_bulk_mark_read_size",
			Help:    "Number of unread records found by mark-all-read",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
		},
	)

	// 入库的通知数量
	NotificationIngestedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_ingested_total",
			Help: "Total number of notification.created events handled",
		},
		[]string{"status"}, // status: inserted, duplicate, failed
	)

	// 已读写入熔断器状态：0 closed, 1 half_open, 2 open
	WriteBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_write_breaker_state",
			Help: "State of the read-state write circuit breaker (0 closed, 1 half_open, 2 open)",
		},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue, status string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue, status).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(sql string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(sql).Inc()
	DBQueryDuration.WithLabelValues("slow", "unknown").Observe(duration.Seconds())
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementFeedError(kind string) {
	FeedErrors.WithLabelValues(kind).Inc()
}

func IncrementMarkRead(status string) {
	MarkReadCount.WithLabelValues(status).Inc()
}

func IncrementNotificationIngested(status string) {
	NotificationIngestedCount.WithLabelValues(status).Inc()
}

// SetWriteBreakerState 记录熔断器状态
func SetWriteBreakerState(state string) {
	switch state {
	case "open":
		WriteBreakerState.Set(2)
	case "half_open":
		WriteBreakerState.Set(1)
	default:
		WriteBreakerState.Set(0)
	}
}
