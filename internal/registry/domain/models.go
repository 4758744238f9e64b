// Package domain holds the tenant business entities that carry quotas.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Company struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;uniqueIndex:ux_companies_tenant_code,priority:1" json:"tenant_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Code      string       `gorm:"type:varchar(96);not null;uniqueIndex:ux_companies_tenant_code,priority:2" json:"code"`
	TaxID     string       `gorm:"type:varchar(32)" json:"tax_id,omitempty"`
	LegalName string       `gorm:"type:text" json:"legal_name,omitempty"`
	IsPrimary bool         `gorm:"not null" json:"is_primary"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Company) TableName() string { return "companies" }

type Branch struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index:ix_branches_tenant_company,priority:1" json:"tenant_id"`
	CompanyID snowflake.ID `gorm:"not null;index:ix_branches_tenant_company,priority:2" json:"company_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Branch) TableName() string { return "branches" }

type Document struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID  `gorm:"not null;index:ix_documents_tenant" json:"tenant_id"`
	CompanyID *snowflake.ID `json:"company_id,omitempty"`
	Name      string        `gorm:"type:text;not null" json:"name"`
	SizeMB    int64         `gorm:"column:size_mb;not null" json:"size_mb"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
}

func (Document) TableName() string { return "documents" }
