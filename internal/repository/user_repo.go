package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"webmail/internal/apperr"
	"webmail/internal/model"
)

const userColumns = `id, email, first_name, last_name, password_hash, role, is_active,
	phone, date_of_birth, street, city, state, zip_code, country, created_at, updated_at`

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.Phone,
		&u.DateOfBirth,
		&u.Address.Street,
		&u.Address.City,
		&u.Address.State,
		&u.Address.ZipCode,
		&u.Address.Country,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]*model.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateUser inserts a new user. A duplicate email returns apperr.ErrEmailTaken.
func (r *UserRepository) CreateUser(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (email, first_name, last_name, password_hash, role, is_active,
			phone, date_of_birth, street, city, state, zip_code, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		u.Email, u.FirstName, u.LastName, u.PasswordHash, u.Role, u.IsActive,
		u.Phone, u.DateOfBirth,
		u.Address.Street, u.Address.City, u.Address.State, u.Address.ZipCode, u.Address.Country,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.ErrEmailTaken
	}
	return err
}

// FindByEmail returns user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindActiveByEmails looks up a set of addresses, returning only active accounts.
func (r *UserRepository) FindActiveByEmails(ctx context.Context, emails []string) ([]*model.User, error) {
	if len(emails) == 0 {
		return []*model.User{}, nil
	}
	users, err := r.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ANY($1) AND is_active = TRUE`, emails)
	if err != nil {
		return nil, fmt.Errorf("find users by email: %w", err)
	}
	return users, nil
}

// FindByIDs returns display summaries for the given ids, active or not.
func (r *UserRepository) FindByIDs(ctx context.Context, ids []int64) ([]model.Participant, error) {
	if len(ids) == 0 {
		return []model.Participant{}, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, first_name, last_name, email FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("find users by id: %w", err)
	}
	defer rows.Close()

	out := make([]model.Participant, 0, len(ids))
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// List returns one page of users, optionally filtered by a case-insensitive
// substring of name or email, newest first.
func (r *UserRepository) List(ctx context.Context, search string, limit, offset int) ([]*model.User, int, error) {
	args := &sqlArgs{}
	where := "TRUE"
	if search != "" {
		p := args.add(likePattern(search))
		where = fmt.Sprintf("(first_name ILIKE %[1]s OR last_name ILIKE %[1]s OR email ILIKE %[1]s)", p)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE `+where, args.values...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	if total == 0 || offset >= total {
		return []*model.User{}, total, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY created_at DESC, id DESC LIMIT %s OFFSET %s`,
		userColumns, where, args.add(limit), args.add(offset))
	users, err := r.queryUsers(ctx, query, args.values...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// UpdateProfile writes the editable profile fields of u.
func (r *UserRepository) UpdateProfile(ctx context.Context, u *model.User) error {
	query := `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, phone = $5, date_of_birth = $6,
		    street = $7, city = $8, state = $9, zip_code = $10, country = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		u.ID, u.Email, u.FirstName, u.LastName, u.Phone, u.DateOfBirth,
		u.Address.Street, u.Address.City, u.Address.State, u.Address.ZipCode, u.Address.Country,
	).Scan(&u.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.ErrEmailTaken
	}
	return err
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetActive flips the active flag. Users are never hard-deleted.
func (r *UserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.execOne(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

func (r *UserRepository) SetRole(ctx context.Context, id int64, role string) error {
	return r.execOne(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
}

