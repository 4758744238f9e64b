package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertUser(ctx context.Context, db *gorm.DB, user *User) error
	FindUserByUsername(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, username string) (*User, error)
	FindUserByID(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) (*User, error)
	UsernameExists(ctx context.Context, db *gorm.DB, username string) (bool, error)
	DeleteUser(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) error
	CountUsersExcludingRole(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, role string) (int64, error)

	InsertToken(ctx context.Context, db *gorm.DB, token *AccessToken) error
	FindTokenByHash(ctx context.Context, db *gorm.DB, hash string) (*AccessToken, error)
	TouchToken(ctx context.Context, db *gorm.DB, id string, at time.Time) error
	DeleteTokensForUser(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) error
	DeleteExpiredTokens(ctx context.Context, db *gorm.DB, before time.Time) (int64, error)
}
