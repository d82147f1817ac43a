package room

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/graychat-core/internal/infrastructure/database"
)

// Repository persists rooms together with their allow-lists.
type Repository interface {
	Create(ctx context.Context, room *Room) error
	GetByID(ctx context.Context, id string) (*Room, error)
	List(ctx context.Context) ([]Room, error)
	Update(ctx context.Context, id string, patch Patch) (*Room, error)
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on the rooms and room_allow_list tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed room repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const roomColumns = "id, name, visibility, owner_id, created_at, updated_at"

// Create inserts room and its allow-list. ID and timestamps are generated
// when empty; the allow-list is de-duplicated.
func (r *SQLiteRepository) Create(ctx context.Context, room *Room) error {
	if !room.Visibility.Valid() {
		return ErrInvalidVisibility
	}
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	room.CreatedAt, room.UpdatedAt = now, now
	room.AllowList = normalizeAllowList(room.AllowList)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting room transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rooms (`+roomColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		room.ID, room.Name, string(room.Visibility), room.OwnerID,
		database.FormatTime(now), database.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting room %s: %w", room.ID, err)
	}
	if err := insertAllowList(ctx, tx, room.ID, room.AllowList); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing room %s: %w", room.ID, err)
	}
	return nil
}

// GetByID returns the room with id or ErrRoomNotFound.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Room, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	lists, err := r.allowLists(ctx, "WHERE room_id = ?", id)
	if err != nil {
		return nil, err
	}
	room.AllowList = orEmpty(lists[id])
	return room, nil
}

// List returns every room, oldest first. Filtering by access is the
// caller's job.
func (r *SQLiteRepository) List(ctx context.Context) ([]Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	rooms := []Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rooms: %w", err)
	}

	lists, err := r.allowLists(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		rooms[i].AllowList = orEmpty(lists[rooms[i].ID])
	}
	return rooms, nil
}

// Update applies patch and returns the stored room. A present AllowList
// replaces the whole set.
func (r *SQLiteRepository) Update(ctx context.Context, id string, patch Patch) (*Room, error) {
	if patch.Visibility != nil && !patch.Visibility.Valid() {
		return nil, ErrInvalidVisibility
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting room transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	sets := []string{"updated_at = ?"}
	args := []any{database.FormatTime(time.Now())}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Visibility != nil {
		sets = append(sets, "visibility = ?")
		args = append(args, string(*patch.Visibility))
	}
	args = append(args, id)

	result, err := tx.ExecContext(ctx,
		"UPDATE rooms SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...) //nolint:gosec // column list is fixed
	if err != nil {
		return nil, fmt.Errorf("updating room %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return nil, ErrRoomNotFound
	}

	if patch.AllowList != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM room_allow_list WHERE room_id = ?", id); err != nil {
			return nil, fmt.Errorf("clearing allow-list for room %s: %w", id, err)
		}
		if err := insertAllowList(ctx, tx, id, normalizeAllowList(*patch.AllowList)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing room %s: %w", id, err)
	}
	return r.GetByID(ctx, id)
}

// Delete removes the room. Allow-list rows and messages cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting room %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrRoomNotFound
	}
	return nil
}

func insertAllowList(ctx context.Context, tx *sql.Tx, roomID string, userIDs []string) error {
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO room_allow_list (room_id, user_id) VALUES (?, ?)", roomID, userID,
		); err != nil {
			return fmt.Errorf("adding %s to allow-list of room %s: %w", userID, roomID, err)
		}
	}
	return nil
}

// allowLists loads allow-list rows grouped by room.
func (r *SQLiteRepository) allowLists(ctx context.Context, where string, args ...any) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT room_id, user_id FROM room_allow_list "+where+" ORDER BY room_id, user_id", args...) //nolint:gosec // where is a constant
	if err != nil {
		return nil, fmt.Errorf("loading allow-lists: %w", err)
	}
	defer rows.Close()

	lists := make(map[string][]string)
	for rows.Next() {
		var roomID, userID string
		if err := rows.Scan(&roomID, &userID); err != nil {
			return nil, fmt.Errorf("scanning allow-list row: %w", err)
		}
		lists[roomID] = append(lists[roomID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating allow-lists: %w", err)
	}
	return lists, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(s scanner) (*Room, error) {
	var room Room
	var visibility, createdAt, updatedAt string
	err := s.Scan(&room.ID, &room.Name, &visibility, &room.OwnerID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("scanning room: %w", err)
	}
	room.Visibility = Visibility(visibility)
	if room.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if room.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &room, nil
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
