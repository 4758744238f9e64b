// Package domain contains tenant users and their bearer tokens.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// User is a tenant account. Usernames are unique across the platform.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_users_tenant_email,priority:1" json:"tenant_id"`
	Username     string       `gorm:"type:varchar(150);not null;uniqueIndex:ux_users_username" json:"username"`
	Email        string       `gorm:"type:varchar(254);not null;uniqueIndex:ux_users_tenant_email,priority:2" json:"email"`
	PasswordHash string       `gorm:"type:text;not null" json:"-"`
	FirstName    string       `gorm:"type:varchar(150)" json:"first_name,omitempty"`
	LastName     string       `gorm:"type:varchar(150)" json:"last_name,omitempty"`
	Role         string       `gorm:"type:varchar(16);not null" json:"role"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// AccessToken is an opaque bearer token. Only the SHA-256 of the raw token is stored.
type AccessToken struct {
	ID         string       `gorm:"primaryKey;type:varchar(32)" json:"id"`
	TenantID   snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	UserID     snowflake.ID `gorm:"not null;index" json:"user_id"`
	TokenHash  string       `gorm:"type:char(64);not null;uniqueIndex:ux_access_tokens_hash" json:"-"`
	ExpiresAt  time.Time    `gorm:"not null" json:"expires_at"`
	LastUsedAt *time.Time   `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time   `json:"revoked_at,omitempty"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

func (AccessToken) TableName() string { return "access_tokens" }
