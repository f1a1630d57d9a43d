package mq

import "time"

const (
	// RoutingKeyMessageSent 非草稿消息创建后发布
	RoutingKeyMessageSent = "message.sent"

	// QueueMessageSentDelivery worker 记录投递的队列
	QueueMessageSentDelivery = "message.sent.delivery.q"
)

// MessageSentPayload 消息发送事件的 payload
type MessageSentPayload struct {
	MessageID    int64     `json:"message_id"`
	FromUserID   int64     `json:"from_user_id"`
	RecipientIDs []int64   `json:"recipient_ids"`
	Subject      string    `json:"subject"`
	Kind         string    `json:"kind"`
	SentAt       time.Time `json:"sent_at"`
	TraceID      string    `json:"trace_id,omitempty"`
}
