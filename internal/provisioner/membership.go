package provisioner

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/controlplane/internal/observability/metrics"
	"github.com/smallbiznis/controlplane/internal/ratelimit"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MembershipSchemaVersion is bumped together with the shared business table models.
const MembershipSchemaVersion = 1

var ErrNamespaceTaken = errors.New("namespace_taken")

// businessTables are dropped child first.
var businessTables = []string{"documents", "branches", "companies"}

// TenantNamespace records that a tenant's rows in the shared business tables
// are live under schema_name.
type TenantNamespace struct {
	SchemaName    string       `gorm:"primaryKey;type:varchar(63)"`
	TenantID      snowflake.ID `gorm:"not null;uniqueIndex:ux_tenant_namespaces_tenant"`
	SchemaVersion int          `gorm:"not null"`
	ProvisionedAt time.Time    `gorm:"not null"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

func (TenantNamespace) TableName() string { return "tenant_namespaces" }

// MembershipProvisioner isolates tenants by tenant_id on engines without schemas.
type MembershipProvisioner struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *metrics.Metrics
	serializer
}

func NewMembershipProvisioner(db *gorm.DB, log *zap.Logger, m *metrics.Metrics, locker *ratelimit.Locker) *MembershipProvisioner {
	return &MembershipProvisioner{
		db:         db,
		log:        log.Named("provisioner.membership"),
		metrics:    m,
		serializer: serializer{locker: locker},
	}
}

func (p *MembershipProvisioner) Strategy() string { return StrategyMembership }

func (p *MembershipProvisioner) Namespace(schemaName string, tenantID snowflake.ID) Namespace {
	return Namespace{Schema: schemaName, TenantID: tenantID}
}

func (p *MembershipProvisioner) Provision(ctx context.Context, schemaName string) (err error) {
	if err := validate(schemaName); err != nil {
		return err
	}
	start := time.Now()
	defer func() { observe(ctx, p.metrics, p.log, StrategyMembership, "provision", schemaName, start, err) }()

	return p.withSchemaLock(ctx, schemaName, func() error {
		db := p.db.WithContext(ctx)

		var tenantID snowflake.ID
		if err := db.Raw(`SELECT id FROM tenants WHERE schema_name = ?`, schemaName).Scan(&tenantID).Error; err != nil {
			return err
		}
		if tenantID == 0 {
			return ErrNamespaceOwner
		}

		existing, err := p.find(ctx, schemaName)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if existing == nil {
			return db.Create(&TenantNamespace{
				SchemaName:    schemaName,
				TenantID:      tenantID,
				SchemaVersion: MembershipSchemaVersion,
				ProvisionedAt: now,
				UpdatedAt:     now,
			}).Error
		}
		if existing.TenantID != tenantID {
			return ErrNamespaceTaken
		}
		if existing.SchemaVersion >= MembershipSchemaVersion {
			return nil
		}
		return db.Model(&TenantNamespace{}).
			Where("schema_name = ?", schemaName).
			Updates(map[string]any{"schema_version": MembershipSchemaVersion, "updated_at": now}).Error
	})
}

func (p *MembershipProvisioner) Drop(ctx context.Context, schemaName string) (err error) {
	if err := validate(schemaName); err != nil {
		return err
	}
	start := time.Now()
	defer func() { observe(ctx, p.metrics, p.log, StrategyMembership, "drop", schemaName, start, err) }()

	return p.withSchemaLock(ctx, schemaName, func() error {
		existing, err := p.find(ctx, schemaName)
		if err != nil || existing == nil {
			return err
		}
		return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, table := range businessTables {
				if err := tx.Exec(`DELETE FROM `+table+` WHERE tenant_id = ?`, existing.TenantID).Error; err != nil {
					return err
				}
			}
			return tx.Exec(`DELETE FROM tenant_namespaces WHERE schema_name = ?`, schemaName).Error
		})
	})
}

func (p *MembershipProvisioner) Exists(ctx context.Context, schemaName string) (bool, error) {
	ns, err := p.find(ctx, schemaName)
	return ns != nil, err
}

func (p *MembershipProvisioner) find(ctx context.Context, schemaName string) (*TenantNamespace, error) {
	var ns TenantNamespace
	err := p.db.WithContext(ctx).Where("schema_name = ?", schemaName).First(&ns).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ns, nil
}
