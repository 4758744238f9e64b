package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/controlplane/internal/auth/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertUser(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindUserByUsername(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, username string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND username = ?", tenantID, username).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) FindUserByID(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, userID).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) UsernameExists(ctx context.Context, db *gorm.DB, username string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.User{}).
		Where("username = ?", username).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) DeleteUser(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, userID).
		Delete(&domain.User{}).Error
}

func (r *repo) CountUsersExcludingRole(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, role string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.User{}).
		Where("tenant_id = ? AND role <> ?", tenantID, role).
		Count(&count).Error
	return count, err
}

func (r *repo) InsertToken(ctx context.Context, db *gorm.DB, token *domain.AccessToken) error {
	return db.WithContext(ctx).Create(token).Error
}

func (r *repo) FindTokenByHash(ctx context.Context, db *gorm.DB, hash string) (*domain.AccessToken, error) {
	var token domain.AccessToken
	err := db.WithContext(ctx).Where("token_hash = ?", hash).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *repo) TouchToken(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).Model(&domain.AccessToken{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}

func (r *repo) DeleteTokensForUser(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Delete(&domain.AccessToken{}).Error
}

func (r *repo) DeleteExpiredTokens(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&domain.AccessToken{})
	return result.RowsAffected, result.Error
}
