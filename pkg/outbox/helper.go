package outbox

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
)

// Builder 在聚合 ID 确定后生成事件；返回空 routingKey 表示不产生事件
type Builder func(aggregateID int64) (routingKey string, payload any)

// InsertEventInTx 在事务中序列化并插入一个 pending 事件
func InsertEventInTx(
	ctx context.Context,
	tx pgx.Tx,
	repo *Repository,
	aggregateType string,
	aggregateID *int64,
	routingKey string,
	payload any,
) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       payloadJSON,
		Status:        StatusPending,
	}

	return repo.InsertEvent(ctx, tx, event)
}

// Emit 执行 Builder 并写入事件，builder 为 nil 时什么都不做
func Emit(ctx context.Context, tx pgx.Tx, repo *Repository, aggregateType string, aggregateID int64, build Builder) error {
	if build == nil || repo == nil {
		return nil
	}
	routingKey, payload := build(aggregateID)
	if routingKey == "" {
		return nil
	}
	return InsertEventInTx(ctx, tx, repo, aggregateType, &aggregateID, routingKey, payload)
}

// traceIDFromPayload 从 payload 中提取 trace_id
func traceIDFromPayload(payload json.RawMessage) string {
	var envelope struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ""
	}
	return envelope.TraceID
}
