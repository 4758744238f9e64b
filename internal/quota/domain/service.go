package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrQuotaExceeded  = errors.New("quota_exceeded")
	ErrUnknownKind    = errors.New("unknown_quota_kind")
	ErrInvalidDelta   = errors.New("invalid_quota_delta")
	ErrUsageNotFound  = errors.New("quota_usage_not_found")
	ErrNoSubscription = errors.New("quota_subscription_not_found")
	ErrInvalidCounts  = errors.New("invalid_quota_counts")
)

// ExceededError reports a refused reservation with the state that caused it.
type ExceededError struct {
	Kind    Kind
	Current int64
	Limit   int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d of %d", e.Kind, e.Current, e.Limit)
}

func (e *ExceededError) Unwrap() error { return ErrQuotaExceeded }

// Decision is the outcome of a read-only Check.
type Decision struct {
	OK      bool
	Kind    Kind
	Current int64
	Limit   int64
}

// Reason renders the decision for logs and API consumers.
func (d Decision) Reason() string {
	if d.OK {
		return ""
	}
	return fmt.Sprintf("%s limit reached (%d/%d)", d.Kind, d.Current, d.Limit)
}

type UsageView struct {
	Usage  QuotaUsage `json:"usage"`
	Limits Limits     `json:"limits"`
}

type Ledger interface {
	// Init creates the zeroed usage row for a new tenant.
	Init(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) error
	// Check reports whether current+delta fits under the plan limit without reserving.
	Check(ctx context.Context, tenantID snowflake.ID, kind Kind, delta int64) (Decision, error)
	// Reserve atomically increments the counter when it stays within the limit.
	// A refusal is an *ExceededError.
	Reserve(ctx context.Context, tenantID snowflake.ID, kind Kind, delta int64) error
	ReserveTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, kind Kind, delta int64) error
	// Release decrements the counter, clamped at zero. Failures are logged only.
	Release(ctx context.Context, tenantID snowflake.ID, kind Kind, delta int64)
	ReleaseTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, kind Kind, delta int64) error
	Usage(ctx context.Context, tenantID snowflake.ID) (*UsageView, error)
	// Recount overwrites the counters with authoritative counts.
	Recount(ctx context.Context, tenantID snowflake.ID, counts Counts) error
}
