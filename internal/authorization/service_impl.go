package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ActorOperator  = "operator"
	platformDomain = "platform"
)

const (
	ObjectUser         = "user"
	ObjectCompany      = "company"
	ObjectBranch       = "branch"
	ObjectDocument     = "document"
	ObjectSubscription = "subscription"
	ObjectBilling      = "billing"
	ObjectUsage        = "usage"
	ObjectTenant       = "tenant"
)

const (
	ActionUserCreate = "user.create"
	ActionUserDelete = "user.delete"

	ActionCompanyCreate = "company.create"
	ActionCompanyDelete = "company.delete"

	ActionBranchCreate = "branch.create"
	ActionBranchDelete = "branch.delete"

	ActionDocumentCreate = "document.create"
	ActionDocumentDelete = "document.delete"

	ActionSubscriptionView   = "subscription.view"
	ActionSubscriptionCancel = "subscription.cancel"

	ActionBillingCheckout = "billing.checkout"

	ActionUsageView = "usage.view"

	ActionTenantDeactivate = "tenant.deactivate"
	ActionTenantDelete     = "tenant.delete"
	ActionTenantRenew      = "tenant.renew"
	ActionTenantRecount    = "tenant.recount"
	ActionTenantAuditView  = "tenant.audit.view"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) *ServiceImpl {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, tenantID snowflake.ID, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, dom, err := s.resolveActor(ctx, actor, tenantID)
	if err != nil {
		s.logDenied(actor, tenantID, object, action, err)
		return err
	}
	if err := s.ensureGrouping(subject, roleName, dom); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, dom, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.logDenied(actor, tenantID, object, action, ErrForbidden)
		return ErrForbidden
	}
	return nil
}

// CleanupTenant drops the role links of a deleted tenant. The rows are removed
// inside tx; the in-memory model is pruned without touching the adapter.
func (s *ServiceImpl) CleanupTenant(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) error {
	dom := tenantDomain(tenantID)
	if err := tx.WithContext(ctx).
		Exec(`DELETE FROM casbin_rule WHERE ptype = 'g' AND v2 = ?`, dom).Error; err != nil {
		return err
	}
	if _, err := s.enforcer.SelfRemoveFilteredPolicy("g", "g", 2, dom); err != nil {
		return err
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, tenantID snowflake.ID) (string, string, string, error) {
	if actor == ActorOperator {
		return actor, "role:operator", platformDomain, nil
	}
	if strings.HasPrefix(actor, "user:") {
		userID, err := snowflake.ParseString(strings.TrimPrefix(actor, "user:"))
		if err != nil || userID == 0 {
			return "", "", "", ErrInvalidActor
		}
		if tenantID == 0 {
			return "", "", "", ErrInvalidTenant
		}
		role, err := s.roleForUser(ctx, tenantID, userID)
		if err != nil {
			return "", "", "", err
		}
		return fmt.Sprintf("user:%s", userID), fmt.Sprintf("role:%s", strings.ToLower(role)), tenantDomain(tenantID), nil
	}
	return "", "", "", ErrInvalidActor
}

func (s *ServiceImpl) roleForUser(ctx context.Context, tenantID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM users
		 WHERE tenant_id = ? AND id = ?
		 LIMIT 1`,
		tenantID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, dom string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", dom)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, dom)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, dom)
	return err
}

func (s *ServiceImpl) logDenied(actor string, tenantID snowflake.ID, object string, action string, reason error) {
	s.log.Info("authorization denied",
		zap.String("actor", actor),
		zap.String("tenant_id", tenantID.String()),
		zap.String("object", object),
		zap.String("action", action),
		zap.Error(reason),
	)
}

func tenantDomain(tenantID snowflake.ID) string {
	return fmt.Sprintf("tenant:%s", tenantID)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions
		{"role:member", ObjectSubscription, ActionSubscriptionView},
		{"role:member", ObjectUsage, ActionUsageView},
		{"role:member", ObjectCompany, ActionCompanyCreate},
		{"role:member", ObjectBranch, ActionBranchCreate},
		{"role:member", ObjectDocument, ActionDocumentCreate},

		// Admin permissions
		{"role:admin", ObjectSubscription, ActionSubscriptionView},
		{"role:admin", ObjectUsage, ActionUsageView},
		{"role:admin", ObjectUser, ActionUserCreate},
		{"role:admin", ObjectUser, ActionUserDelete},
		{"role:admin", ObjectCompany, ActionCompanyCreate},
		{"role:admin", ObjectCompany, ActionCompanyDelete},
		{"role:admin", ObjectBranch, ActionBranchCreate},
		{"role:admin", ObjectBranch, ActionBranchDelete},
		{"role:admin", ObjectDocument, ActionDocumentCreate},
		{"role:admin", ObjectDocument, ActionDocumentDelete},

		// Owner permissions
		{"role:owner", ObjectSubscription, ActionSubscriptionView},
		{"role:owner", ObjectSubscription, ActionSubscriptionCancel},
		{"role:owner", ObjectBilling, ActionBillingCheckout},
		{"role:owner", ObjectUsage, ActionUsageView},
		{"role:owner", ObjectUser, ActionUserCreate},
		{"role:owner", ObjectUser, ActionUserDelete},
		{"role:owner", ObjectCompany, ActionCompanyCreate},
		{"role:owner", ObjectCompany, ActionCompanyDelete},
		{"role:owner", ObjectBranch, ActionBranchCreate},
		{"role:owner", ObjectBranch, ActionBranchDelete},
		{"role:owner", ObjectDocument, ActionDocumentCreate},
		{"role:owner", ObjectDocument, ActionDocumentDelete},

		// Platform operator
		{"role:operator", ObjectTenant, ActionTenantDeactivate},
		{"role:operator", ObjectTenant, ActionTenantDelete},
		{"role:operator", ObjectTenant, ActionTenantRenew},
		{"role:operator", ObjectTenant, ActionTenantRecount},
		{"role:operator", ObjectTenant, ActionTenantAuditView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
