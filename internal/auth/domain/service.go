package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateUserRequest struct {
	TenantID  snowflake.ID
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

type LoginRequest struct {
	TenantID snowflake.ID
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// Principal is the authenticated identity behind a bearer token.
type Principal struct {
	UserID   snowflake.ID
	TenantID snowflake.ID
	Role     string
	TokenID  string
}

type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	CreateUserTx(ctx context.Context, tx *gorm.DB, req CreateUserRequest) (*User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	// DeleteUser removes a non-owner user, revokes its tokens and releases its quota slot.
	DeleteUser(ctx context.Context, tenantID, userID snowflake.ID) error
	CountMembers(ctx context.Context, tenantID snowflake.ID) (int64, error)

	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Authenticate(ctx context.Context, tenantID snowflake.ID, rawToken string) (*Principal, error)
	// PurgeExpiredTokens deletes tokens that expired before now.
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// HashToken hashes a raw bearer token for storage and lookup.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
