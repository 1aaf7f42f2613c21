// internal/repositories/db.go
package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/AI-Template-SDK/senso-analysis/internal/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Open connects to the store selected by cfg.StoreDriver and verifies the connection.
func Open(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	switch cfg.StoreDriver {
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case DriverPostgres, "":
		return OpenPostgres(ctx, cfg.Database)
	default:
		return nil, eris.Errorf("repositories: unsupported store driver %q", cfg.StoreDriver)
	}
}

// OpenPostgres connects through lib/pq using the pool settings from cfg.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, DriverPostgres, cfg.DSN())
	if err != nil {
		return nil, eris.Wrap(err, "repositories: connect postgres")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "repositories: ping postgres")
	}
	return db, nil
}

// OpenSQLite opens a local SQLite file (or ":memory:"). A single connection is used so
// transactions never contend for the database lock.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sqlx.ConnectContext(ctx, DriverSQLite, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "repositories: open sqlite")
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
