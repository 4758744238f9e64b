package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// QuotaUsage holds the live counters of one tenant. Only the ledger writes it.
type QuotaUsage struct {
	TenantID       snowflake.ID `gorm:"primaryKey" json:"tenant_id"`
	UsersCount     int64        `gorm:"not null;default:0" json:"users_count"`
	CompaniesCount int64        `gorm:"not null;default:0" json:"companies_count"`
	BranchesCount  int64        `gorm:"not null;default:0" json:"branches_count"`
	StorageMB      int64        `gorm:"column:storage_mb;not null;default:0" json:"storage_mb"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

func (QuotaUsage) TableName() string { return "quota_usages" }

func (u QuotaUsage) Current(kind Kind) int64 {
	switch kind {
	case KindUsers:
		return u.UsersCount
	case KindCompanies:
		return u.CompaniesCount
	case KindBranches:
		return u.BranchesCount
	case KindStorage:
		return u.StorageMB
	}
	return 0
}

// Limits are the plan caps in ledger units (storage in MB).
type Limits struct {
	Users     int64 `json:"users"`
	Companies int64 `json:"companies"`
	Branches  int64 `json:"branches"`
	StorageMB int64 `json:"storage_mb"`
}

func (l Limits) Of(kind Kind) int64 {
	switch kind {
	case KindUsers:
		return l.Users
	case KindCompanies:
		return l.Companies
	case KindBranches:
		return l.Branches
	case KindStorage:
		return l.StorageMB
	}
	return 0
}

// Counts are authoritative entity counts used to repair the counters.
type Counts struct {
	Users     int64 `json:"users"`
	Companies int64 `json:"companies"`
	Branches  int64 `json:"branches"`
	StorageMB int64 `json:"storage_mb"`
}
