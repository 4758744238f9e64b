package db

import (
	"time"

	"github.com/smallbiznis/controlplane/internal/config"
)

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

// PoolConfig carries connection pool limits applied after the dialector opens.
type PoolConfig struct {
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func poolConfig(cfg config.Config) PoolConfig {
	pc := PoolConfig{
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Second,
	}
	if pc.MaxIdleConn <= 0 {
		pc.MaxIdleConn = 5
	}
	if pc.MaxOpenConn <= 0 {
		pc.MaxOpenConn = 25
	}
	if pc.ConnMaxLifetime <= 0 {
		pc.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.DBType == DialectSQLite {
		// single writer; concurrent writers get SQLITE_BUSY otherwise
		pc.MaxOpenConn = 1
		pc.MaxIdleConn = 1
	}
	return pc
}
