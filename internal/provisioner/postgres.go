package provisioner

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"github.com/smallbiznis/controlplane/internal/observability/metrics"
	"github.com/smallbiznis/controlplane/internal/ratelimit"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var tenantMigrations embed.FS

const tenantMigrationsTable = "tenant_schema_migrations"

// SchemaProvisioner gives each tenant its own PostgreSQL schema.
type SchemaProvisioner struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *metrics.Metrics
	serializer
}

func NewSchemaProvisioner(db *gorm.DB, log *zap.Logger, m *metrics.Metrics, locker *ratelimit.Locker) *SchemaProvisioner {
	return &SchemaProvisioner{
		db:         db,
		log:        log.Named("provisioner.schema"),
		metrics:    m,
		serializer: serializer{locker: locker},
	}
}

func (p *SchemaProvisioner) Strategy() string { return StrategySchema }

func (p *SchemaProvisioner) Namespace(schemaName string, tenantID snowflake.ID) Namespace {
	return Namespace{Schema: schemaName, TenantID: tenantID, Isolated: true}
}

func (p *SchemaProvisioner) Provision(ctx context.Context, schemaName string) (err error) {
	if err := validate(schemaName); err != nil {
		return err
	}
	start := time.Now()
	defer func() { observe(ctx, p.metrics, p.log, StrategySchema, "provision", schemaName, start, err) }()

	return p.withSchemaLock(ctx, schemaName, func() error {
		if err := p.db.WithContext(ctx).Exec(`CREATE SCHEMA IF NOT EXISTS ` + pq.QuoteIdentifier(schemaName)).Error; err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return p.migrate(ctx, schemaName)
	})
}

// migrate applies the embedded tenant migrations on a dedicated connection
// whose search_path points at the tenant schema.
func (p *SchemaProvisioner) migrate(ctx context.Context, schemaName string) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `SET search_path TO `+pq.QuoteIdentifier(schemaName)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("set search_path: %w", err)
	}

	source, err := iofs.New(tenantMigrations, "migrations")
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open tenant migrations: %w", err)
	}

	driver, err := migratepg.WithConnection(ctx, conn, &migratepg.Config{
		SchemaName:      schemaName,
		MigrationsTable: tenantMigrationsTable,
	})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()

	// The connection goes back to the shared pool.
	if _, err := conn.ExecContext(context.WithoutCancel(ctx), `RESET search_path`); err != nil {
		p.log.Warn("reset search_path failed", zap.String("schema", schemaName), zap.Error(err))
	}
	srcErr, dbErr := migrator.Close()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply tenant migrations: %w", upErr)
	}
	if srcErr != nil {
		return srcErr
	}
	if dbErr != nil && !errors.Is(dbErr, sql.ErrConnDone) {
		return dbErr
	}
	return nil
}

func (p *SchemaProvisioner) Drop(ctx context.Context, schemaName string) (err error) {
	if err := validate(schemaName); err != nil {
		return err
	}
	start := time.Now()
	defer func() { observe(ctx, p.metrics, p.log, StrategySchema, "drop", schemaName, start, err) }()

	return p.withSchemaLock(ctx, schemaName, func() error {
		return p.db.WithContext(ctx).Exec(`DROP SCHEMA IF EXISTS ` + pq.QuoteIdentifier(schemaName) + ` CASCADE`).Error
	})
}

func (p *SchemaProvisioner) Exists(ctx context.Context, schemaName string) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM information_schema.schemata WHERE schema_name = ?`,
		schemaName,
	).Scan(&count).Error
	return count > 0, err
}
