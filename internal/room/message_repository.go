package room

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/graychat-core/internal/infrastructure/database"
)

// MessageRepository stores room messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *Message) error
	ListByRoom(ctx context.Context, roomID string) ([]Message, error)
}

// SQLiteMessageRepository implements MessageRepository on the messages table.
type SQLiteMessageRepository struct {
	db *sql.DB
}

// NewSQLiteMessageRepository creates a SQLite-backed message repository.
func NewSQLiteMessageRepository(db *sql.DB) *SQLiteMessageRepository {
	return &SQLiteMessageRepository{db: db}
}

// Create inserts msg. The room must exist.
//
// The service has no send path yet: no handler calls Create. It stays on
// the interface so tests can seed the history read by ListByRoom, and so
// a later send endpoint has a store to write to.
func (r *SQLiteMessageRepository) Create(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.Content, database.FormatTime(msg.CreatedAt),
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// ListByRoom returns a room's messages, oldest first.
func (r *SQLiteMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, room_id, sender_id, content, created_at FROM messages
		 WHERE room_id = ? ORDER BY created_at ASC, id ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing messages for room %s: %w", roomID, err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if m.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}
