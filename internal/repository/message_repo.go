package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"webmail/internal/mailbox"
	"webmail/internal/model"
	"webmail/pkg/outbox"
)

const messageAggregate = "message"

const messageColumns = `id, from_user_id, to_ids, cc_ids, bcc_ids, subject, body, attachments,
	is_read, is_important, is_draft, is_deleted, labels, reply_to_id, forwarded_from_id,
	version, created_at, updated_at`

type MessageRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
}

func NewMessageRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository) *MessageRepository {
	return &MessageRepository{db: db, outbox: outboxRepo}
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	var attachments []byte
	err := row.Scan(
		&m.ID,
		&m.From,
		&m.To,
		&m.Cc,
		&m.Bcc,
		&m.Subject,
		&m.Body,
		&attachments,
		&m.IsRead,
		&m.IsImportant,
		&m.IsDraft,
		&m.IsDeleted,
		&m.Labels,
		&m.ReplyTo,
		&m.ForwardedFrom,
		&m.Version,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments of message %d: %w", m.ID, err)
		}
	}
	return &m, nil
}

// orEmpty keeps NOT NULL array columns from receiving NULL.
func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// CreateWithEvent inserts the message and, when build is non-nil, its outbox
// event in the same transaction.
func (r *MessageRepository) CreateWithEvent(ctx context.Context, m *model.Message, build outbox.Builder) error {
	attachments, err := json.Marshal(m.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	if m.Attachments == nil {
		attachments = []byte("[]")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO messages (from_user_id, to_ids, cc_ids, bcc_ids, subject, body, attachments,
			is_read, is_important, is_draft, is_deleted, labels, reply_to_id, forwarded_from_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, version, created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		m.From,
		orEmpty(m.To),
		orEmpty(m.Cc),
		orEmpty(m.Bcc),
		m.Subject,
		m.Body,
		attachments,
		m.IsRead,
		m.IsImportant,
		m.IsDraft,
		m.IsDeleted,
		orEmpty(m.Labels),
		m.ReplyTo,
		m.ForwardedFrom,
	).Scan(&m.ID, &m.Version, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if err := outbox.Emit(ctx, tx, r.outbox, messageAggregate, m.ID, build); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit message insert: %w", err)
	}
	return nil
}

// FindByID returns pgx.ErrNoRows when the message does not exist.
func (r *MessageRepository) FindByID(ctx context.Context, id int64) (*model.Message, error) {
	return scanMessage(r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

// List returns one page of messages matching q plus the total match count.
func (r *MessageRepository) List(ctx context.Context, q mailbox.Query, limit, offset int) ([]*model.Message, int, error) {
	total, err := r.Count(ctx, q.Filter)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 || offset >= total {
		return []*model.Message{}, total, nil
	}

	args := &sqlArgs{}
	where := compileFilter(q.Filter, args)
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE %s %s LIMIT %s OFFSET %s`,
		messageColumns, where, orderBy(q.Sort), args.add(limit), args.add(offset))

	rows, err := r.db.Query(ctx, query, args.values...)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*model.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, total, rows.Err()
}

// Count returns the number of messages matching f.
func (r *MessageRepository) Count(ctx context.Context, f mailbox.Filter) (int, error) {
	args := &sqlArgs{}
	where := compileFilter(f, args)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE `+where, args.values...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return total, nil
}

// MarkRead flips is_read once. It reports false when the message was already read.
func (r *MessageRepository) MarkRead(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND is_read = FALSE
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark message %d read: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateFlags applies patch. With expectedVersion set, a version mismatch
// matches no row and returns pgx.ErrNoRows.
func (r *MessageRepository) UpdateFlags(ctx context.Context, id int64, patch model.FlagPatch, expectedVersion *int64) (*model.Message, error) {
	query := `
		UPDATE messages
		SET is_read = COALESCE($2, is_read),
		    is_important = COALESCE($3, is_important),
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND ($4::BIGINT IS NULL OR version = $4)
		RETURNING ` + messageColumns
	return scanMessage(r.db.QueryRow(ctx, query, id, patch.IsRead, patch.IsImportant, expectedVersion))
}

// SoftDelete marks the message deleted and collapses its labels to trash.
func (r *MessageRepository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_deleted = TRUE, labels = ARRAY['trash'], version = version + 1, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("soft delete message %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

