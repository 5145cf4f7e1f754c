package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stellaide/server/internal/models"
	"github.com/stellaide/server/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const defaultPageSize = 10

// ChatService covers the container chat surface: one room per container,
// paged message history. Real-time transport lives elsewhere.
type ChatService interface {
	CreateRoom(ctx context.Context, containerID uuid.UUID) (*models.ChatRoom, error)
	GetRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error)
	GetRoomByContainer(ctx context.Context, containerID uuid.UUID) (*models.ChatRoom, error)
	GetMessagePage(ctx context.Context, roomID int64, page, size int) (*models.MessagePage, error)
}

type chatService struct {
	chatRepo repository.ChatRepository
}

func NewChatService(chatRepo repository.ChatRepository) *chatService {
	return &chatService{chatRepo: chatRepo}
}

// CreateRoom takes a bare container id; the room name derives from it.
func (s *chatService) CreateRoom(ctx context.Context, containerID uuid.UUID) (*models.ChatRoom, error) {
	tracer := otel.Tracer("stellaide-chat")
	ctx, span := tracer.Start(ctx, "CreateRoom")
	defer span.End()

	room := &models.ChatRoom{
		ContainerID: containerID,
		Name:        fmt.Sprintf("container-%s", containerID),
	}
	if err := s.chatRepo.CreateRoom(ctx, room); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "room creation failed")
		slog.Error("failed to create chat room", "container_id", containerID, "error", err)
		return nil, err
	}

	slog.Info("chat room created", "room_id", room.RoomID, "container_id", containerID)
	return room, nil
}

func (s *chatService) GetRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error) {
	tracer := otel.Tracer("stellaide-chat")
	ctx, span := tracer.Start(ctx, "GetRoom")
	defer span.End()

	room, err := s.chatRepo.GetRoom(ctx, roomID)
	if err != nil {
		span.SetStatus(codes.Error, "room lookup failed")
		return nil, err
	}
	return room, nil
}

func (s *chatService) GetRoomByContainer(ctx context.Context, containerID uuid.UUID) (*models.ChatRoom, error) {
	tracer := otel.Tracer("stellaide-chat")
	ctx, span := tracer.Start(ctx, "GetRoomByContainer")
	defer span.End()

	room, err := s.chatRepo.GetRoomByContainer(ctx, containerID)
	if err != nil {
		span.SetStatus(codes.Error, "room lookup failed")
		return nil, err
	}
	return room, nil
}

func (s *chatService) GetMessagePage(ctx context.Context, roomID int64, page, size int) (*models.MessagePage, error) {
	tracer := otel.Tracer("stellaide-chat")
	ctx, span := tracer.Start(ctx, "GetMessagePage")
	defer span.End()

	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}

	if _, err := s.chatRepo.GetRoom(ctx, roomID); err != nil {
		span.SetStatus(codes.Error, "room lookup failed")
		return nil, err
	}

	total, err := s.chatRepo.CountMessages(ctx, roomID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "message count failed")
		return nil, err
	}
	messages, err := s.chatRepo.ListMessages(ctx, roomID, size, page*size)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "message listing failed")
		return nil, err
	}

	return &models.MessagePage{
		Messages:   messages,
		Page:       page,
		Size:       size,
		TotalCount: total,
	}, nil
}
