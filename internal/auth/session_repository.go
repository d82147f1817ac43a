package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/graychat-core/internal/infrastructure/database"
)

// SessionRepository records issued credentials.
type SessionRepository interface {
	Record(ctx context.Context, token, userID string, expiresAt time.Time) error
	// Revoke deletes the record matching both token and owner. Revoking a
	// pairing that does not exist is not an error.
	Revoke(ctx context.Context, token, userID string) error
	// Exists reports whether an unexpired record matches token and owner.
	Exists(ctx context.Context, token, userID string) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteSessionRepository implements SessionRepository on the sessions table.
type SQLiteSessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRepository creates a SQLite-backed session repository.
func NewSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db, now: time.Now}
}

// HashToken returns the hex SHA-256 of a credential. Raw credentials are
// never stored.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Record stores a session for userID. The user must exist.
func (r *SQLiteSessionRepository) Record(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), HashToken(token), userID,
		database.FormatTime(r.now()), database.FormatTime(expiresAt),
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("recording session: %w", ErrUserNotFound)
		}
		return fmt.Errorf("recording session: %w", err)
	}
	return nil
}

// Revoke deletes the session for token owned by userID.
func (r *SQLiteSessionRepository) Revoke(ctx context.Context, token, userID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE token_hash = ? AND user_id = ?", HashToken(token), userID)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// Exists looks up an unexpired session for token owned by userID.
func (r *SQLiteSessionRepository) Exists(ctx context.Context, token, userID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM sessions WHERE token_hash = ? AND user_id = ? AND expires_at > ?",
		HashToken(token), userID, database.FormatTime(r.now()),
	).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("looking up session: %w", err)
	}
	return true, nil
}

// DeleteExpired purges sessions past their expiry and returns how many
// were removed.
func (r *SQLiteSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at <= ?", database.FormatTime(r.now()))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}
