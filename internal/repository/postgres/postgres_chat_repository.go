package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stellaide/server/internal/models"
	pkgerrors "github.com/stellaide/server/pkg/errors"
)

type PostgresChatRepository struct {
	db *sql.DB
}

func NewPostgresChatRepository(db *sql.DB) *PostgresChatRepository {
	return &PostgresChatRepository{db: db}
}

func (r *PostgresChatRepository) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	if room == nil {
		return fmt.Errorf("room is nil")
	}

	query := `
	INSERT INTO chat_rooms (container_id, name)
	VALUES ($1, $2)
	RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, room.ContainerID, room.Name).
		Scan(&room.RoomID, &room.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pkgerrors.ErrDuplicateRoom
	}
	if err != nil {
		return fmt.Errorf("failed to create chat room: %w", err)
	}
	return nil
}

func (r *PostgresChatRepository) GetRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error) {
	query := `SELECT id, container_id, name, created_at FROM chat_rooms WHERE id = $1`

	var room models.ChatRoom
	err := r.db.QueryRowContext(ctx, query, roomID).Scan(
		&room.RoomID,
		&room.ContainerID,
		&room.Name,
		&room.CreatedAt,
	)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrRoomNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get chat room: %w", err)
	}
	return &room, nil
}

func (r *PostgresChatRepository) GetRoomByContainer(ctx context.Context, containerID uuid.UUID) (*models.ChatRoom, error) {
	query := `SELECT id, container_id, name, created_at FROM chat_rooms WHERE container_id = $1`

	var room models.ChatRoom
	err := r.db.QueryRowContext(ctx, query, containerID).Scan(
		&room.RoomID,
		&room.ContainerID,
		&room.Name,
		&room.CreatedAt,
	)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrRoomNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get chat room by container: %w", err)
	}
	return &room, nil
}

func (r *PostgresChatRepository) CountMessages(ctx context.Context, roomID int64) (int64, error) {
	query := `SELECT COUNT(*) FROM chat_messages WHERE room_id = $1`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, roomID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (r *PostgresChatRepository) ListMessages(ctx context.Context, roomID int64, limit, offset int) ([]models.ChatMessage, error) {
	query := `
	SELECT id, room_id, sender, content, sent_at
	FROM chat_messages
	WHERE room_id = $1
	ORDER BY sent_at DESC, id DESC
	LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, roomID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.MessageID, &m.RoomID, &m.Sender, &m.Content, &m.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
