package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-clinic-api/internal/domain"
)


func TestUserRepo_CreateGetListDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.User{})

	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	a := &domain.User{Email: "ana@clinic.co", Username: "ana", Password: "h", Role: domain.RoleUser, CreatedAt: t0}
	if err := CreateUser(ctx, db, a); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if a.ID == "" || a.UpdatedAt.IsZero() {
		t.Fatalf("id/timestamps not assigned: %+v", a)
	}
	b := &domain.User{Email: "beto@clinic.co", Username: "beto", Password: "h", Role: domain.RoleAdmin}
	b.CreatedAt = t0.Add(time.Hour)
	if err := CreateUser(ctx, db, b); err != nil {
		t.Fatalf("CreateUser b: %v", err)
	}

	list, err := ListUsers(ctx, db)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListUsers: %v %d", err, len(list))
	}
	if list[0].ID != b.ID {
		t.Fatalf("expected newest first, got %s", list[0].Username)
	}

	got, err := GetUserByEmail(ctx, db, "ana@clinic.co")
	if err != nil || got.ID != a.ID {
		t.Fatalf("GetUserByEmail: %v %+v", err, got)
	}

	if err := DeleteUser(ctx, db, a.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := GetUser(ctx, db, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := DeleteUser(ctx, db, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
}

func TestUserRepo_UniqueEmailSurfacesRawError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.User{})
	if err := CreateUser(ctx, db, &domain.User{Email: "x@y.co", Username: "x", Password: "h"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := CreateUser(ctx, db, &domain.User{Email: "x@y.co", Username: "other", Password: "h"})
	if err == nil {
		t.Fatalf("expected unique violation")
	}
}

func TestFindUserConflict(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.User{})
	u := &domain.User{Email: "ana@clinic.co", Username: "ana", Password: "h"}
	if err := CreateUser(ctx, db, u); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if got, err := FindUserConflict(ctx, db, "ana@clinic.co", "someone", ""); err != nil || got.ID != u.ID {
		t.Fatalf("email clash not found: %v", err)
	}
	if got, err := FindUserConflict(ctx, db, "", "ana", ""); err != nil || got.ID != u.ID {
		t.Fatalf("username clash not found: %v", err)
	}
	if _, err := FindUserConflict(ctx, db, "ana@clinic.co", "", u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("excluded id should not clash, got %v", err)
	}
	if _, err := FindUserConflict(ctx, db, "", "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank lookup should be ErrNotFound, got %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.User{})
	u := &domain.User{Email: "ana@clinic.co", Username: "ana", Password: "h"}
	if err := CreateUser(ctx, db, u); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := UpdateUser(ctx, db, u.ID, map[string]any{"role": domain.RoleAdmin}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got, _ := GetUser(ctx, db, u.ID)
	if got.Role != domain.RoleAdmin {
		t.Fatalf("role not updated: %+v", got)
	}
	if err := UpdateUser(ctx, db, "missing", map[string]any{"role": "X"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := UpdateUser(ctx, db, "missing", nil); err != nil {
		t.Fatalf("empty update should be a no-op, got %v", err)
	}
}
