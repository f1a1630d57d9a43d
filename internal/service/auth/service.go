package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"webmail/internal/apperr"
	"webmail/internal/model"
	"webmail/internal/service/user"
	"webmail/pkg/logger"
	"webmail/pkg/util"
)

const minPasswordLen = 6

// UserStore is the account persistence auth needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Phone       *string
	DateOfBirth *string
	Address     *model.Address
}

// Session is returned by register and login.
type Session struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type Service struct {
	users     UserStore
	jwtSecret string
	tokenTTL  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(users UserStore, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{
		users:     users,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// Register creates an active user-role account and signs a token for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	u := &model.User{Role: model.RoleUser, IsActive: true}
	profile := user.ProfileInput{
		Email:       &in.Email,
		FirstName:   &in.FirstName,
		LastName:    &in.LastName,
		Phone:       in.Phone,
		DateOfBirth: in.DateOfBirth,
		Address:     in.Address,
	}

	var fields []apperr.FieldError
	if err := profile.Apply(u, s.now()); err != nil {
		var ve *apperr.ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		fields = ve.Fields
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLen {
		fields = append(fields, apperr.FieldError{Field: "password", Message: "Password must be at least 6 characters"})
	}
	if len(fields) > 0 {
		return nil, &apperr.ValidationError{Fields: fields}
	}

	hash, err := util.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash

	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, apperr.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	logger.WithTrace(ctx, s.logger).Info("User registered",
		zap.Int64("user_id", u.ID),
		zap.String("email", u.Email),
	)
	return s.session(u)
}

// Login checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.ErrUnauthorized
	}

	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !util.CheckPassword(password, u.PasswordHash) {
		logger.WithTrace(ctx, s.logger).Warn("Login failed", zap.Int64("user_id", u.ID))
		return nil, apperr.ErrUnauthorized
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: account is deactivated", apperr.ErrForbidden)
	}

	return s.session(u)
}

// Me returns the caller's own account.
func (s *Service) Me(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", userID, err)
	}
	return u, nil
}

func (s *Service) session(u *model.User) (*Session, error) {
	token, err := util.GenerateJWT(u.ID, u.Role, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: token, User: u}, nil
}
