package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/elmojondesatan/backend-asist/internal/store"
)

// Repository persists accounts in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetByEmail returns the account for correo, or (nil, nil) when absent.
func (r *Repository) GetByEmail(ctx context.Context, correo string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, nombre, correo, password, created_at
		FROM usuarios WHERE correo = $1
	`, correo)
	var u User
	if err := row.Scan(&u.ID, &u.Nombre, &u.Correo, &u.Password, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a new account. A unique-constraint hit on correo is
// translated to ErrDuplicateEmail.
func (r *Repository) Create(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO usuarios (id, nombre, correo, password)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, u.ID, u.Nombre, u.Correo, u.Password)
	if err := row.Scan(&u.CreatedAt); err != nil {
		if store.IsUniqueViolation(err) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}
	return u, nil
}

// UpdatePassword replaces the stored hash for correo.
func (r *Repository) UpdatePassword(ctx context.Context, correo, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE usuarios SET password = $2 WHERE correo = $1`, correo, hash)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUnknownEmail
	}
	return nil
}
