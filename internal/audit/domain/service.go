package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeSystem   ActorType = "system"
	ActorTypeUser     ActorType = "user"
	ActorTypeOperator ActorType = "operator"
)

// Actions recorded by the control plane.
const (
	ActionTenantSignup       = "tenant.signup"
	ActionTenantDeactivate   = "tenant.deactivate"
	ActionTenantDelete       = "tenant.delete"
	ActionTenantRenew        = "tenant.renew"
	ActionTenantRecount      = "tenant.recount"
	ActionUserCreate         = "user.create"
	ActionUserDelete         = "user.delete"
	ActionSubscriptionCancel = "subscription.cancel"
	ActionSubscriptionStatus = "subscription.status"
)

// AuditLog is one recorded control-plane action. Rows outlive the tenant they
// describe, so tenant_id carries no foreign key.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID   *snowflake.ID     `gorm:"index" json:"tenant_id,omitempty"`
	ActorType  string            `gorm:"type:varchar(32);not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:varchar(64)" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:varchar(64);not null;index" json:"action"`
	TargetType string            `gorm:"type:varchar(32);not null" json:"target_type"`
	TargetID   *string           `gorm:"type:varchar(64)" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is what callers hand to Record. Actor and request id come from the
// context when not set.
type Entry struct {
	TenantID   snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListRequest struct {
	TenantID  snowflake.ID
	Action    string
	PageToken string
	PageSize  int
}

type ListResponse struct {
	AuditLogs     []AuditLog `json:"audit_logs"`
	NextPageToken string     `json:"next_page_token,omitempty"`
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	TenantID snowflake.ID
	Action   string
	Cursor   *Cursor
	Limit    int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidAction    = errors.New("invalid_action")
)
