package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrDomainTaken        = errors.New("domain_taken")
	ErrProvisioningFailed = errors.New("provisioning_failed")
)

type Service interface {
	// Signup creates a tenant with its primary domain, owner user, trial
	// subscription, zeroed quota usage, namespace and primary company. Any
	// failure after the catalog commit removes everything it created.
	Signup(ctx context.Context, req Request) (*Result, error)
	CheckDomain(ctx context.Context, domain string) (*DomainAvailability, error)
}

type Request struct {
	TenantName     string `json:"tenant_name"`
	Domain         string `json:"domain"`
	PlanID         string `json:"plan_id"`
	AdminUsername  string `json:"admin_username"`
	AdminEmail     string `json:"admin_email"`
	AdminPassword  string `json:"admin_password"`
	AdminFirstName string `json:"admin_first_name"`
	AdminLastName  string `json:"admin_last_name"`
	// Company fields keep their public wire names.
	CompanyName      string `json:"empresa_nome"`
	CompanyTaxID     string `json:"empresa_cnpj"`
	CompanyLegalName string `json:"empresa_razao_social"`
}

type Result struct {
	Tenant       TenantSummary       `json:"tenant"`
	User         UserSummary         `json:"user"`
	Subscription SubscriptionSummary `json:"subscription"`
	LoginURL     string              `json:"login_url"`
}

type TenantSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type UserSummary struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type SubscriptionSummary struct {
	Plan      string    `json:"plan"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

type DomainAvailability struct {
	Available bool   `json:"available"`
	Domain    string `json:"domain,omitempty"`
	Message   string `json:"message"`
}
