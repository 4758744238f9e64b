package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
	authdomain "github.com/smallbiznis/controlplane/internal/auth/domain"
	billingdomain "github.com/smallbiznis/controlplane/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	paymentdomain "github.com/smallbiznis/controlplane/internal/payment/domain"
	"github.com/smallbiznis/controlplane/internal/provisioner"
	quotadomain "github.com/smallbiznis/controlplane/internal/quota/domain"
	registrydomain "github.com/smallbiznis/controlplane/internal/registry/domain"
	subscriptiondomain "github.com/smallbiznis/controlplane/internal/subscription/domain"
	"github.com/smallbiznis/controlplane/pkg/db"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every catalog table. Engines without schemas also carry the
// shared business tables and the namespace registry.
func Models() []any {
	return []any{
		&catalogdomain.Tenant{},
		&catalogdomain.Domain{},
		&catalogdomain.Plan{},
		&catalogdomain.Feature{},
		&catalogdomain.PlanFeature{},
		&subscriptiondomain.Subscription{},
		&quotadomain.QuotaUsage{},
		&authdomain.User{},
		&authdomain.AccessToken{},
		&billingdomain.BillingCustomer{},
		&paymentdomain.PaymentMethod{},
		&paymentdomain.Payment{},
		&paymentdomain.Invoice{},
		&paymentdomain.WebhookEvent{},
		&auditdomain.AuditLog{},
		&provisioner.TenantNamespace{},
		&registrydomain.Company{},
		&registrydomain.Branch{},
		&registrydomain.Document{},
	}
}

// Migrate brings the catalog up to date. PostgreSQL runs the versioned SQL
// migrations; other engines are auto-migrated from the models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if !db.IsPostgres(conn) {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

// RunMigrations applies the embedded catalog migrations to a PostgreSQL database.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.

	return nil
}
