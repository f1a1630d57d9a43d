package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "webmail/contracts/mq"
	"webmail/pkg/logger"
	"webmail/pkg/metrics"
	"webmail/pkg/trace"
)

const deliveryHandlerName = "message_sent_delivery"

var errMissingMessageID = errors.New("message.sent payload has no message_id")

// DeliveryRecorder 写入投递记录，重复行被忽略
type DeliveryRecorder interface {
	Insert(ctx context.Context, messageID int64, recipientIDs []int64, traceID string) (int64, error)
}

// OnceGuard 按消息 id 去重
type OnceGuard interface {
	AcquireOnce(ctx context.Context, handler string, id int64) bool
	Release(ctx context.Context, handler string, id int64)
}

type MessageSentDeliveryHandler struct {
	recorder DeliveryRecorder
	guard    OnceGuard
	logger   *zap.Logger
}

func NewMessageSentDeliveryHandler(recorder DeliveryRecorder, guard OnceGuard, logger *zap.Logger) *MessageSentDeliveryHandler {
	return &MessageSentDeliveryHandler{
		recorder: recorder,
		guard:    guard,
		logger:   logger,
	}
}

// HandleMessageSent records one delivery row per recipient. Redelivered
// events are skipped by the guard and by the table's unique key.
func (h *MessageSentDeliveryHandler) HandleMessageSent(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.MessageSentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal message sent payload", zap.Error(err))
		metrics.IncrementDeliveryRecorded("failed")
		return fmt.Errorf("decode message.sent: %w", err)
	}
	if p.MessageID <= 0 {
		metrics.IncrementDeliveryRecorded("failed")
		return errMissingMessageID
	}

	if trace.FromContext(ctx) == "" && p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger).With(zap.Int64("message_id", p.MessageID))

	if !h.guard.AcquireOnce(ctx, deliveryHandlerName, p.MessageID) {
		metrics.IncrementDeliveryRecorded("duplicate")
		return nil
	}

	inserted, err := h.recorder.Insert(ctx, p.MessageID, p.RecipientIDs, trace.FromContext(ctx))
	if err != nil {
		// 释放去重键，让重投的消息可以再次处理
		h.guard.Release(ctx, deliveryHandlerName, p.MessageID)
		metrics.IncrementDeliveryRecorded("failed")
		log.Error("Failed to record delivery", zap.Error(err))
		return fmt.Errorf("record delivery for message %d: %w", p.MessageID, err)
	}

	metrics.IncrementDeliveryRecorded("success")
	log.Info("Delivery recorded",
		zap.Int("recipients", len(p.RecipientIDs)),
		zap.Int64("inserted", inserted),
		zap.String("kind", p.Kind),
	)
	return nil
}
