package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/stellaide/server/internal/models"
	pkgerrors "github.com/stellaide/server/pkg/errors"
)

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	if user.Email == "" || user.PasswordHash == "" || user.Nickname == "" {
		return pkgerrors.ErrIncorrectFormat
	}

	query := `
	INSERT INTO users (email, nickname, password_hash, role)
	VALUES ($1, $2, $3, $4)
	RETURNING id, created_at
	`
	err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.Nickname,
		user.PasswordHash,
		user.Role,
	).Scan(&user.ID, &user.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		if strings.Contains(pqErr.Constraint, "nickname") {
			return pkgerrors.ErrDuplicateNickname
		}
		return pkgerrors.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, pkgerrors.ErrIncorrectFormat
	}

	query := `SELECT id, email, nickname, password_hash, role, created_at FROM users WHERE email = $1`

	var user models.User
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.Nickname,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
	)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return &user, nil
}

func (r *PostgresUserRepository) NicknameExists(ctx context.Context, nickname string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE nickname = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, nickname).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check nickname: %w", err)
	}
	return exists, nil
}

func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1 WHERE email = $2`

	res, err := r.db.ExecContext(ctx, query, passwordHash, email)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pkgerrors.ErrUserNotFound
	}
	return nil
}

func (r *PostgresUserRepository) Delete(ctx context.Context, email string) error {
	query := `DELETE FROM users WHERE email = $1`

	res, err := r.db.ExecContext(ctx, query, email)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pkgerrors.ErrUserNotFound
	}
	return nil
}
