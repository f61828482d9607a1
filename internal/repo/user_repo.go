// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// Functions are thin: no business rules, only CRUD and query composition.
// Missing rows surface as gorm.ErrRecordNotFound (ErrNotFound); constraint
// violations are returned raw so the translate package can classify them.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-api/internal/domain"
)

// CreateUser inserts u, assigning a UUID and UTC timestamps when unset.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return db.WithContext(ctx).Create(u).Error
}

// ListUsers returns all users, most recently created first.
func ListUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).Order("created_at desc").Find(&out).Error
	return out, err
}

// GetUser fetches a user by id.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by (already normalised) email.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserConflict returns another user holding email or username, ignoring
// excludeID. Blank values are not matched. It returns ErrNotFound when there
// is no clash.
func FindUserConflict(ctx context.Context, db *gorm.DB, email, username, excludeID string) (*domain.User, error) {
	q := db.WithContext(ctx).Model(&domain.User{})
	switch {
	case email != "" && username != "":
		q = q.Where("email = ? OR username = ?", email, username)
	case email != "":
		q = q.Where("email = ?", email)
	case username != "":
		q = q.Where("username = ?", username)
	default:
		return nil, gorm.ErrRecordNotFound
	}
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var u domain.User
	if err := q.First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser applies the given column updates to user id. It returns
// ErrNotFound when no row matched.
func UpdateUser(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteUser removes user id, returning ErrNotFound when nothing was deleted.
func DeleteUser(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
