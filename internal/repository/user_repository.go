package repository

import (
	"context"

	"github.com/stellaide/server/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	NicknameExists(ctx context.Context, nickname string) (bool, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) error
	Delete(ctx context.Context, email string) error
}
