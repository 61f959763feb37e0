package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/pkg/security"
	"bitwise74/media-api/pkg/validators"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"
)

const userIDCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	ErrUserExists  = errors.New("user with this email already exists")
	ErrInvalidRole = errors.New("invalid role")
)

// CreateUser validates the credentials and stores a new account
func CreateUser(ctx context.Context, db *gorm.DB, argon *security.ArgonHash, email, password string, role model.Role) (*model.User, error) {
	if err := validators.EmailValidator(email); err != nil {
		return nil, err
	}

	if err := validators.PasswordValidator(password); err != nil {
		return nil, err
	}

	if !role.Valid() {
		return nil, fmt.Errorf("%w %q", ErrInvalidRole, role)
	}

	var count int64
	if err := db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check for existing user, %w", err)
	}

	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := argon.GenerateFromPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password, %w", err)
	}

	id, err := gonanoid.Generate(userIDCharset, 16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate user ID, %w", err)
	}

	u := &model.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().Unix(),
	}

	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, fmt.Errorf("failed to create user, %w", err)
	}

	return u, nil
}
