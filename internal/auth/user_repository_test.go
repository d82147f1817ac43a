package auth

import (
	"context"
	"errors"
	"testing"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := seedUser(t, db, "alice")
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("Create() should fill ID and timestamps: %+v", u)
	}

	byID, err := repo.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Username != "alice" || byID.Email != "alice@example.com" {
		t.Errorf("GetByID() = %+v", byID)
	}

	byEmail, err := repo.GetByEmail(ctx, "alice@example.com")
	if err != nil || byEmail.ID != u.ID {
		t.Errorf("GetByEmail() = (%v, %v)", byEmail, err)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_Conflicts(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	seedUser(t, db, "alice")

	tests := []struct {
		name string
		user User
	}{
		{"same username", User{Username: "alice", Email: "other@example.com", PasswordHash: "h"}},
		{"same email", User{Username: "other", Email: "alice@example.com", PasswordHash: "h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			if err := repo.Create(ctx, &u); !errors.Is(err, ErrUserExists) {
				t.Errorf("Create() error = %v, want ErrUserExists", err)
			}
		})
	}
}

func TestUserRepository_FindByUsernameOrEmail(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")

	for _, q := range [][2]string{{"alice", "nobody@example.com"}, {"nobody", "alice@example.com"}} {
		got, err := repo.FindByUsernameOrEmail(ctx, q[0], q[1])
		if err != nil || got.ID != alice.ID {
			t.Errorf("FindByUsernameOrEmail(%q, %q) = (%v, %v)", q[0], q[1], got, err)
		}
	}

	if _, err := repo.FindByUsernameOrEmail(ctx, "nobody", "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("FindByUsernameOrEmail(miss) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_UpdatePatch(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	seedUser(t, db, "bob")

	newName := "alicia"
	got, err := repo.Update(ctx, alice.ID, UserPatch{Username: &newName})
	if err != nil {
		t.Fatalf("Update(username) error = %v", err)
	}
	if got.Username != "alicia" || got.PasswordHash != alice.PasswordHash {
		t.Errorf("Update(username) = %+v; password hash must be untouched", got)
	}

	newHash := "new-hash"
	got, err = repo.Update(ctx, alice.ID, UserPatch{PasswordHash: &newHash})
	if err != nil {
		t.Fatalf("Update(password) error = %v", err)
	}
	if got.PasswordHash != "new-hash" || got.Username != "alicia" {
		t.Errorf("Update(password) = %+v", got)
	}

	taken := "bob"
	if _, err := repo.Update(ctx, alice.ID, UserPatch{Username: &taken}); !errors.Is(err, ErrUserExists) {
		t.Errorf("Update(taken username) error = %v, want ErrUserExists", err)
	}

	if _, err := repo.Update(ctx, "missing", UserPatch{Username: &newName}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrUserNotFound", err)
	}

	same, err := repo.Update(ctx, alice.ID, UserPatch{})
	if err != nil || same.Username != "alicia" {
		t.Errorf("Update(empty patch) = (%v, %v)", same, err)
	}
}
