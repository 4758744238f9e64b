// Package provisioner creates and removes the per-tenant storage namespaces.
//
// On PostgreSQL every tenant owns a schema named after Tenant.SchemaName and
// the tenant migrations are applied inside it. Engines without schemas use
// the membership strategy: business tables are shared, carry a tenant_id
// column, and the namespace is a row in tenant_namespaces.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/smallbiznis/controlplane/internal/catalog/domain"
	"github.com/smallbiznis/controlplane/internal/observability/metrics"
	"github.com/smallbiznis/controlplane/internal/ratelimit"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	StrategySchema     = "schema"
	StrategyMembership = "membership"

	lockTTL  = 2 * time.Minute
	lockPoll = 100 * time.Millisecond
)

var (
	ErrInvalidSchemaName = errors.New("invalid_schema_name")
	ErrNamespaceOwner    = errors.New("namespace_owner_not_found")
)

type Provisioner interface {
	// Provision creates the namespace and applies pending migrations. Running
	// it against an up-to-date namespace is a no-op.
	Provision(ctx context.Context, schemaName string) error
	// Drop removes the namespace and everything in it.
	Drop(ctx context.Context, schemaName string) error
	Exists(ctx context.Context, schemaName string) (bool, error)
	// Namespace returns the table resolver for a provisioned tenant.
	Namespace(schemaName string, tenantID snowflake.ID) Namespace
	Strategy() string
}

// Namespace resolves business table names for one tenant. Queries built on
// it must still filter by TenantID.
type Namespace struct {
	Schema   string
	TenantID snowflake.ID
	Isolated bool
}

func (n Namespace) Table(name string) string {
	if n.Isolated {
		return pq.QuoteIdentifier(n.Schema) + "." + pq.QuoteIdentifier(name)
	}
	return name
}

// Insert writes one row into a business table. Under the membership strategy
// the row is written only while the tenant_namespaces row for this tenant
// exists; RowsAffected is zero otherwise.
func (n Namespace) Insert(tx *gorm.DB, table string, columns []string, values ...any) *gorm.DB {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	target := fmt.Sprintf("%s (%s)", n.Table(table), strings.Join(columns, ", "))
	if n.Isolated {
		return tx.Exec("INSERT INTO "+target+" VALUES ("+placeholders+")", values...)
	}
	return tx.Exec(
		"INSERT INTO "+target+" SELECT "+placeholders+
			" WHERE EXISTS (SELECT 1 FROM tenant_namespaces WHERE schema_name = ? AND tenant_id = ?)",
		append(values, n.Schema, n.TenantID)...,
	)
}

// serializer orders provisioning per schema within the process and, when
// redis is configured, across replicas.
type serializer struct {
	local  shardedMutex
	locker *ratelimit.Locker
}

func (s *serializer) withSchemaLock(ctx context.Context, schemaName string, fn func() error) error {
	unlock := s.local.Lock(schemaName)
	defer unlock()

	if s.locker != nil {
		key := "provision:" + schemaName
		token, err := s.locker.Lock(ctx, key, lockTTL, lockPoll)
		if err != nil {
			return fmt.Errorf("acquire provisioning lock: %w", err)
		}
		defer func() {
			_ = s.locker.Release(context.WithoutCancel(ctx), key, token)
		}()
	}
	return fn()
}

func validate(schemaName string) error {
	if !domain.ValidSchemaName(schemaName) {
		return ErrInvalidSchemaName
	}
	return nil
}

func observe(ctx context.Context, m *metrics.Metrics, log *zap.Logger, strategy, op, schemaName string, start time.Time, err error) {
	elapsed := time.Since(start)
	if op == "provision" {
		m.RecordProvisioning(ctx, strategy, elapsed, err)
	}
	fields := []zap.Field{
		zap.String("strategy", strategy),
		zap.String("schema", schemaName),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		log.Error(op+" failed", append(fields, zap.Error(err))...)
		return
	}
	log.Info(op+" done", fields...)
}
