package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveryLogRepository records which recipients a sent message reached.
type DeliveryLogRepository struct {
	db *pgxpool.Pool
}

func NewDeliveryLogRepository(db *pgxpool.Pool) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

// Insert writes one row per recipient and returns how many were new.
// Replayed events hit the (message_id, recipient_id) key and are skipped.
func (r *DeliveryLogRepository) Insert(ctx context.Context, messageID int64, recipientIDs []int64, traceID string) (int64, error) {
	if len(recipientIDs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, rid := range recipientIDs {
		batch.Queue(`
			INSERT INTO delivery_log (message_id, recipient_id, trace_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (message_id, recipient_id) DO NOTHING
		`, messageID, rid, traceID)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range recipientIDs {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert delivery log for message %d: %w", messageID, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

