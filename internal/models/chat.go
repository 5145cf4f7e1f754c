package models

import (
	"time"

	"github.com/google/uuid"
)

type ChatRoom struct {
	RoomID      int64     `json:"roomId"`
	ContainerID uuid.UUID `json:"containerId"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ChatMessage struct {
	MessageID int64     `json:"messageId"`
	RoomID    int64     `json:"roomId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sentAt"`
}

// MessagePage mirrors the page shape the old backend returned for
// chatRoom/load: newest messages first plus paging bookkeeping.
type MessagePage struct {
	Messages   []ChatMessage `json:"messages"`
	Page       int           `json:"page"`
	Size       int           `json:"size"`
	TotalCount int64         `json:"totalCount"`
}
