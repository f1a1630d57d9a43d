package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"webmail/internal/apperr"
	"webmail/internal/mailbox"
	"webmail/internal/model"
	"webmail/pkg/logger"
	"webmail/pkg/rbac"
)

// Store is the user persistence the service needs.
type Store interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	List(ctx context.Context, search string, limit, offset int) ([]*model.User, int, error)
	UpdateProfile(ctx context.Context, u *model.User) error
	SetActive(ctx context.Context, id int64, active bool) error
	SetRole(ctx context.Context, id int64, role string) error
}

// SummaryInvalidator drops cached participant summaries.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, id int64)
}

// Actor is the authenticated caller.
type Actor struct {
	ID   int64
	Role string
}

func (a Actor) isAdmin() bool {
	return rbac.HasPermission(a.Role, rbac.PermissionManageUsers)
}

type ListResult struct {
	Users      []*model.User `json:"users"`
	Pagination mailbox.Page  `json:"pagination"`
}

type Service struct {
	store       Store
	invalidator SummaryInvalidator
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(store Store, invalidator SummaryInvalidator, logger *zap.Logger) *Service {
	return &Service{store: store, invalidator: invalidator, logger: logger, now: time.Now}
}

func (s *Service) load(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.store.FindByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return u, nil
}

// Get returns a profile to its owner or an admin.
func (s *Service) Get(ctx context.Context, actor Actor, id int64) (*model.User, error) {
	if actor.ID != id && !actor.isAdmin() {
		return nil, apperr.ErrForbidden
	}
	return s.load(ctx, id)
}

// UpdateProfile edits a profile as its owner or an admin.
func (s *Service) UpdateProfile(ctx context.Context, actor Actor, id int64, in ProfileInput) (*model.User, error) {
	if actor.ID != id && !actor.isAdmin() {
		return nil, apperr.ErrForbidden
	}
	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.Apply(u, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateProfile(ctx, u); err != nil {
		if errors.Is(err, apperr.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	s.invalidator.Invalidate(ctx, id)

	logger.WithTrace(ctx, s.logger).Info("Profile updated",
		zap.Int64("user_id", id),
		zap.Int64("actor_id", actor.ID),
	)
	return u, nil
}

// List pages through all accounts. Admin only.
func (s *Service) List(ctx context.Context, actor Actor, page, limit int, search string) (*ListResult, error) {
	if !actor.isAdmin() {
		return nil, apperr.ErrForbidden
	}
	page, limit = mailbox.NormalizePaging(page, limit)
	users, total, err := s.store.List(ctx, strings.TrimSpace(search), limit, mailbox.Offset(page, limit))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return &ListResult{Users: users, Pagination: mailbox.NewPage(page, limit, total)}, nil
}

func (s *Service) Activate(ctx context.Context, actor Actor, id int64) (*model.User, error) {
	return s.setActive(ctx, actor, id, true)
}

// Deactivate flips the active flag off; accounts are never removed.
func (s *Service) Deactivate(ctx context.Context, actor Actor, id int64) (*model.User, error) {
	if actor.ID == id {
		return nil, apperr.Invalid("id", "You cannot deactivate your own account")
	}
	return s.setActive(ctx, actor, id, false)
}

func (s *Service) setActive(ctx context.Context, actor Actor, id int64, active bool) (*model.User, error) {
	if !actor.isAdmin() {
		return nil, apperr.ErrForbidden
	}
	if err := s.store.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("set active for user %d: %w", id, err)
	}
	s.invalidator.Invalidate(ctx, id)

	logger.WithTrace(ctx, s.logger).Info("User activation changed",
		zap.Int64("user_id", id),
		zap.Bool("active", active),
		zap.Int64("actor_id", actor.ID),
	)
	return s.load(ctx, id)
}

// SetRole changes a user's role. Admins cannot change their own role.
func (s *Service) SetRole(ctx context.Context, actor Actor, id int64, role string) (*model.User, error) {
	if !actor.isAdmin() {
		return nil, apperr.ErrForbidden
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if !rbac.ValidRole(role) {
		return nil, apperr.Invalid("role", "Role must be user or admin")
	}
	if actor.ID == id {
		return nil, apperr.Invalid("id", "You cannot change your own role")
	}
	if err := s.store.SetRole(ctx, id, role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("set role for user %d: %w", id, err)
	}
	s.invalidator.Invalidate(ctx, id)

	logger.WithTrace(ctx, s.logger).Info("User role changed",
		zap.Int64("user_id", id),
		zap.String("role", role),
		zap.Int64("actor_id", actor.ID),
	)
	return s.load(ctx, id)
}
