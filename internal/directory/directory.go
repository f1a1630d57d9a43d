package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"webmail/internal/apperr"
	"webmail/internal/mailbox"
	"webmail/internal/model"
	"webmail/pkg/metrics"
)

// UserStore is the slice of the user repository the directory needs.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindActiveByEmails(ctx context.Context, emails []string) ([]*model.User, error)
	FindByIDs(ctx context.Context, ids []int64) ([]model.Participant, error)
}

// SummaryCache caches participant summaries and accounts by id.
// GetAccount returns nil without error on a miss.
type SummaryCache interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]model.Participant, []int64, error)
	SetMany(ctx context.Context, ps []model.Participant) error
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	SetAccount(ctx context.Context, a model.Account) error
	Invalidate(ctx context.Context, id int64) error
}

// Directory resolves recipient addresses to ids and ids to display summaries.
type Directory struct {
	users  UserStore
	cache  SummaryCache
	logger *zap.Logger
}

// New builds a Directory. cache may be nil.
func New(users UserStore, cache SummaryCache, logger *zap.Logger) *Directory {
	return &Directory{users: users, cache: cache, logger: logger}
}

// ResolveEmails maps every address to an active user id. If any address is
// unknown or inactive the whole lookup fails with UnresolvedRecipientError.
func (d *Directory) ResolveEmails(ctx context.Context, emails []string) (map[string]int64, error) {
	wanted := mailbox.NormalizeEmails(emails)
	resolved := make(map[string]int64, len(wanted))
	if len(wanted) == 0 {
		return resolved, nil
	}

	users, err := d.users.FindActiveByEmails(ctx, wanted)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	for _, u := range users {
		resolved[u.Email] = u.ID
	}

	var missing []string
	for _, e := range wanted {
		if _, ok := resolved[e]; !ok {
			missing = append(missing, e)
		}
	}
	if len(missing) > 0 {
		metrics.IncrementUnresolvedRecipient()
		return nil, &apperr.UnresolvedRecipientError{Emails: missing}
	}
	return resolved, nil
}

// Participants returns summaries for ids. Unknown ids get an id-only summary.
func (d *Directory) Participants(ctx context.Context, ids []int64) (map[int64]model.Participant, error) {
	out := make(map[int64]model.Participant, len(ids))
	pending := dedupe(ids)
	if len(pending) == 0 {
		return out, nil
	}

	if d.cache != nil {
		hits, misses, err := d.cache.GetMany(ctx, pending)
		if err != nil {
			d.logger.Warn("Summary cache unavailable, falling back to database", zap.Error(err))
		} else {
			for id, p := range hits {
				out[id] = p
			}
			pending = misses
		}
	}

	if len(pending) > 0 {
		found, err := d.users.FindByIDs(ctx, pending)
		if err != nil {
			return nil, fmt.Errorf("load participants: %w", err)
		}
		for _, p := range found {
			out[p.ID] = p
		}
		if d.cache != nil && len(found) > 0 {
			if err := d.cache.SetMany(ctx, found); err != nil {
				d.logger.Warn("Failed to populate summary cache", zap.Error(err))
			}
		}
	}

	for _, id := range ids {
		if _, ok := out[id]; !ok {
			out[id] = model.Participant{ID: id}
		}
	}
	return out, nil
}

// Account returns the stored role and active flag of a user. A missing user
// is ErrNotFound.
func (d *Directory) Account(ctx context.Context, id int64) (*model.Account, error) {
	if d.cache != nil {
		a, err := d.cache.GetAccount(ctx, id)
		if err != nil {
			d.logger.Warn("Account cache unavailable, falling back to database", zap.Int64("user_id", id), zap.Error(err))
		} else if a != nil {
			return a, nil
		}
	}

	u, err := d.users.FindByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", id, err)
	}
	a := u.Account()
	if d.cache != nil {
		if err := d.cache.SetAccount(ctx, a); err != nil {
			d.logger.Warn("Failed to populate account cache", zap.Int64("user_id", id), zap.Error(err))
		}
	}
	return &a, nil
}

// Invalidate drops a cached summary after a profile, role or status change.
func (d *Directory) Invalidate(ctx context.Context, id int64) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Invalidate(ctx, id); err != nil {
		d.logger.Warn("Failed to invalidate summary cache", zap.Int64("user_id", id), zap.Error(err))
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
