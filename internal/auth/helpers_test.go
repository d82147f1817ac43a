package auth

import (
	"context"
	"database/sql"
	"testing"

	"github.com/nerrad567/graychat-core/internal/infrastructure/database/dbtest"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbtest.New(t).DB
}

// seedUser inserts a user with a pre-computed hash; hashing is covered
// by password_test.go.
func seedUser(t *testing.T, db *sql.DB, username string) *User {
	t.Helper()
	u := &User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaA",
	}
	if err := NewUserRepository(db).Create(context.Background(), u); err != nil {
		t.Fatalf("seeding user %s: %v", username, err)
	}
	return u
}
