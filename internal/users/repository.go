package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates that the requested user does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrDuplicateEmail indicates an email collision on create.
	ErrDuplicateEmail = errors.New("users: email already exists")
)

const userColumns = `id, email, name, is_superuser, is_active, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for users.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all users ordered by email.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser fetches a user by ID.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// CreateUser inserts a new account with a pre-hashed password.
func (r *Repository) CreateUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO users (email, name, password_hash) VALUES ($1, $2, $3) RETURNING `+userColumns, email, name, passwordHash)
	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}
	return u, nil
}

// SetSuperuser toggles the superuser flag.
func (r *Repository) SetSuperuser(ctx context.Context, id int64, superuser bool) (User, error) {
	row := r.pool.QueryRow(ctx, `UPDATE users SET is_superuser = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns, id, superuser)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// SetActive toggles the active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) (User, error) {
	row := r.pool.QueryRow(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns, id, active)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// ListGrants returns the management permissions granted to a user.
func (r *Repository) ListGrants(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT permission FROM user_grants WHERE user_id = $1 ORDER BY permission`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// AddGrant attaches a management permission to a user.
func (r *Repository) AddGrant(ctx context.Context, userID int64, permission string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_grants (user_id, permission) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, permission)
	return err
}

// RemoveGrant detaches a management permission from a user.
func (r *Repository) RemoveGrant(ctx context.Context, userID int64, permission string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_grants WHERE user_id = $1 AND permission = $2`, userID, permission)
	return err
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Superuser, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
