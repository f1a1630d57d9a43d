package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation"},
	)

	// 慢查询计数
	DBSlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	// 消息创建计数
	MessageCreatedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_created_count",
			Help: "Total number of messages created",
		},
		[]string{"kind"}, // kind: send, draft, reply, forward
	)

	// 收件人解析失败计数
	UnresolvedRecipientCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "message_unresolved_recipient_count",
			Help: "Total number of create/forward requests rejected for unknown recipients",
		},
	)

	// 读取触发的已读标记
	MessageReadMarkedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "message_read_marked_count",
			Help: "Total number of messages flipped to read by a recipient fetch",
		},
	)

	// Outbox 发布结果
	OutboxPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_count",
			Help: "Total number of outbox publish attempts",
		},
		[]string{"routing_key", "status"}, // status: sent, failed, breaker_open
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 投递记录计数
	DeliveryRecordedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_recorded_count",
			Help: "Total number of message.sent events recorded by the worker",
		},
		[]string{"status"}, // status: success, duplicate, failed
	)
)

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(operation string) {
	DBSlowQueryCount.WithLabelValues(operation).Inc()
}

// IncrementMessageCreated 增加消息创建计数
func IncrementMessageCreated(kind string) {
	MessageCreatedCount.WithLabelValues(kind).Inc()
}

// IncrementUnresolvedRecipient 增加收件人解析失败计数
func IncrementUnresolvedRecipient() {
	UnresolvedRecipientCount.Inc()
}

// IncrementReadMarked 增加已读标记计数
func IncrementReadMarked() {
	MessageReadMarkedCount.Inc()
}

// IncrementOutboxPublish 增加 outbox 发布计数
func IncrementOutboxPublish(routingKey, status string) {
	OutboxPublishCount.WithLabelValues(routingKey, status).Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// IncrementDeliveryRecorded 增加投递记录计数
func IncrementDeliveryRecorded(status string) {
	DeliveryRecordedCount.WithLabelValues(status).Inc()
}
