package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stellaide/server/internal/models"
)

type ChatRepository interface {
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	GetRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error)
	GetRoomByContainer(ctx context.Context, containerID uuid.UUID) (*models.ChatRoom, error)
	CountMessages(ctx context.Context, roomID int64) (int64, error)
	ListMessages(ctx context.Context, roomID int64, limit, offset int) ([]models.ChatMessage, error)
}
