package services

import (
	"context"
	"fmt"
	"strings"
	"ticketshop/src/models"

	"gorm.io/gorm"
)

// DBUserDirectory resolves users from the users table. Emails compare
// case-insensitively.
type DBUserDirectory struct {
	db *gorm.DB
}

func NewDBUserDirectory(db *gorm.DB) *DBUserDirectory {
	return &DBUserDirectory{db: db}
}

func (d *DBUserDirectory) Resolve(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).
		Error
	if err != nil {
		return nil, notFound(err, fmt.Errorf("%s: %w", email, ErrUserNotFound))
	}
	return &user, nil
}

func (d *DBUserDirectory) Get(ctx context.Context, id uint) (*models.User, error) {
	if id == 0 {
		return nil, ErrUserNotFound
	}
	var user models.User
	if err := d.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, fmt.Errorf("user %d: %w", id, ErrUserNotFound))
	}
	return &user, nil
}
