package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stellaide/server/internal/infrastructure/redis"
	"github.com/stellaide/server/internal/models"
	pkgerrors "github.com/stellaide/server/pkg/errors"
)

// fakeRedis is an in-memory stand-in for a single Redis namespace. The
// failing flag simulates a store outage.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	failing bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return "", fmt.Errorf("connection refused")
	}
	val, ok := f.data[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return val, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return fmt.Errorf("connection refused")
	}
	f.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (f *fakeRedis) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return fmt.Errorf("connection refused")
	}
	delete(f.data, key)
	return nil
}

func (f *fakeRedis) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return false, fmt.Errorf("connection refused")
	}
	_, ok := f.data[key]
	return ok, nil
}

func (f *fakeRedis) Close() error { return nil }

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*models.User
	nextID int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User), nextID: 1}
}

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.Email]; ok {
		return pkgerrors.ErrDuplicateEmail
	}
	for _, u := range f.users {
		if u.Nickname == user.Nickname {
			return pkgerrors.ErrDuplicateNickname
		}
	}
	user.ID = f.nextID
	f.nextID++
	user.CreatedAt = time.Now()
	copied := *user
	f.users[user.Email] = &copied
	return nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[email]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserRepo) NicknameExists(_ context.Context, nickname string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Nickname == nickname {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, email, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[email]
	if !ok {
		return pkgerrors.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[email]; !ok {
		return pkgerrors.ErrUserNotFound
	}
	delete(f.users, email)
	return nil
}

type sentMessage struct {
	Topic string
	Key   string
	Value []byte
}

type fakeProducer struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeProducer) Send(_ context.Context, topic, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Topic: topic, Key: key, Value: value})
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func (f *fakeProducer) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	topics := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		topics = append(topics, m.Topic)
	}
	return topics
}

type fakeChatRepo struct {
	mu       sync.Mutex
	rooms    map[int64]*models.ChatRoom
	messages map[int64][]models.ChatMessage
	nextID   int64
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{
		rooms:    make(map[int64]*models.ChatRoom),
		messages: make(map[int64][]models.ChatMessage),
		nextID:   1,
	}
}

func (f *fakeChatRepo) CreateRoom(_ context.Context, room *models.ChatRoom) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.ContainerID == room.ContainerID {
			return pkgerrors.ErrDuplicateRoom
		}
	}
	room.RoomID = f.nextID
	f.nextID++
	room.CreatedAt = time.Now()
	copied := *room
	f.rooms[room.RoomID] = &copied
	return nil
}

func (f *fakeChatRepo) GetRoom(_ context.Context, roomID int64) (*models.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, pkgerrors.ErrRoomNotFound
	}
	copied := *room
	return &copied, nil
}

func (f *fakeChatRepo) GetRoomByContainer(_ context.Context, containerID uuid.UUID) (*models.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, room := range f.rooms {
		if room.ContainerID == containerID {
			copied := *room
			return &copied, nil
		}
	}
	return nil, pkgerrors.ErrRoomNotFound
}

func (f *fakeChatRepo) CountMessages(_ context.Context, roomID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.messages[roomID])), nil
}

func (f *fakeChatRepo) ListMessages(_ context.Context, roomID int64, limit, offset int) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[roomID]
	if offset >= len(msgs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	return msgs[offset:end], nil
}
