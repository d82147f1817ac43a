package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionRepository_RecordExistsRevoke(t *testing.T) {
	db := testDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	if err := repo.Record(ctx, "token-a", alice.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	ok, err := repo.Exists(ctx, "token-a", alice.ID)
	if err != nil || !ok {
		t.Fatalf("Exists(owner) = (%v, %v), want true", ok, err)
	}
	if ok, _ := repo.Exists(ctx, "token-a", bob.ID); ok {
		t.Error("Exists() must match the owner too")
	}

	// Wrong owner leaves the record alone.
	if err := repo.Revoke(ctx, "token-a", bob.ID); err != nil {
		t.Fatalf("Revoke(wrong owner) error = %v", err)
	}
	if ok, _ := repo.Exists(ctx, "token-a", alice.ID); !ok {
		t.Fatal("Revoke() by a different owner removed the session")
	}

	for i := 0; i < 2; i++ {
		if err := repo.Revoke(ctx, "token-a", alice.ID); err != nil {
			t.Fatalf("Revoke() attempt %d error = %v", i+1, err)
		}
	}
	if ok, _ := repo.Exists(ctx, "token-a", alice.ID); ok {
		t.Error("session still exists after Revoke()")
	}
}

func TestSessionRepository_StoresHashOnly(t *testing.T) {
	db := testDB(t)
	repo := NewSessionRepository(db)
	alice := seedUser(t, db, "alice")

	if err := repo.Record(context.Background(), "raw-credential", alice.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	var stored string
	if err := db.QueryRow("SELECT token_hash FROM sessions").Scan(&stored); err != nil {
		t.Fatalf("reading session: %v", err)
	}
	if stored == "raw-credential" || stored != HashToken("raw-credential") {
		t.Errorf("stored token_hash = %q, want SHA-256 of the credential", stored)
	}
}

func TestSessionRepository_RecordUnknownUser(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	err := repo.Record(context.Background(), "t", "ghost", time.Now().Add(time.Hour))
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Record(unknown user) error = %v, want ErrUserNotFound", err)
	}
}

func TestSessionRepository_Expiry(t *testing.T) {
	db := testDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")

	if err := repo.Record(ctx, "old", alice.ID, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Record(old) error = %v", err)
	}
	if err := repo.Record(ctx, "fresh", alice.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Record(fresh) error = %v", err)
	}

	if ok, _ := repo.Exists(ctx, "old", alice.ID); ok {
		t.Error("Exists() should ignore expired sessions")
	}

	n, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}
	if ok, _ := repo.Exists(ctx, "fresh", alice.ID); !ok {
		t.Error("DeleteExpired() removed a live session")
	}
}
