package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stellaide/server/internal/models"
	pkgerrors "github.com/stellaide/server/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestPostgresChatRepository_CreateRoom(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := NewPostgresChatRepository(db)
	ctx := context.Background()
	containerID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		room := &models.ChatRoom{ContainerID: containerID, Name: "container-" + containerID.String()}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chat_rooms`)).
			WithArgs(room.ContainerID, room.Name).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

		err := repo.CreateRoom(ctx, room)
		assert.NoError(t, err)
		assert.Equal(t, int64(7), room.RoomID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateContainer", func(t *testing.T) {
		room := &models.ChatRoom{ContainerID: containerID, Name: "dup"}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chat_rooms`)).
			WithArgs(room.ContainerID, room.Name).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "chat_rooms_container_id_key"})

		err := repo.CreateRoom(ctx, room)
		assert.ErrorIs(t, err, pkgerrors.ErrDuplicateRoom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresChatRepository_GetRoom(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := NewPostgresChatRepository(db)
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, container_id, name, created_at FROM chat_rooms WHERE id = $1`)).
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "container_id", "name", "created_at"}))

		_, err := repo.GetRoom(ctx, 99)
		assert.ErrorIs(t, err, pkgerrors.ErrRoomNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresChatRepository_ListMessages(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := NewPostgresChatRepository(db)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "room_id", "sender", "content", "sent_at"}).
		AddRow(int64(2), int64(1), "nick", "newest", time.Now()).
		AddRow(int64(1), int64(1), "nick", "older", time.Now().Add(-time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, room_id, sender, content, sent_at`)).
		WithArgs(int64(1), 10, 0).
		WillReturnRows(rows)

	messages, err := repo.ListMessages(ctx, 1, 10, 0)
	assert.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Equal(t, "newest", messages[0].Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresChatRepository_CountMessages(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := NewPostgresChatRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM chat_messages WHERE room_id = $1`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	count, err := repo.CountMessages(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
