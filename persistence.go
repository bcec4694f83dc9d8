package auth

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenDB connects to the configured database and returns the persistence
// client wrapping it. Call Migrate before using the tables.
func OpenDB(ctx context.Context, cfg PersistenceConfig) (*persistence.Client, error) {
	var (
		sqldb   *sql.DB
		dialect schema.Dialect
		err     error
	)

	switch cfg.GetDriver() {
	case DriverSQLite, "":
		if sqldb, err = sql.Open(sqliteshim.ShimName, cfg.GetServer()); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open sqlite database")
		}
		// sqlite in-memory databases are per connection
		sqldb.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
	case DriverPostgres:
		if sqldb, err = sql.Open("postgres", cfg.GetServer()); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open postgres database")
		}
		dialect = pgdialect.New()
	default:
		return nil, errors.New(fmt.Sprintf("unsupported database driver %q", cfg.GetDriver()), errors.CategoryBadInput)
	}

	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to connect to database")
	}

	client, err := persistence.New(cfg, sqldb, dialect)
	if err != nil {
		_ = sqldb.Close()
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create persistence client")
	}

	return client, nil
}

// Migrate runs the embedded users and refresh_tokens migrations for the
// client's dialect
func Migrate(ctx context.Context, client *persistence.Client) error {
	client.RegisterDialectMigrations(
		GetMigrationsFS(),
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets(DriverPostgres, DriverSQLite),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "migrations are not aligned across dialects")
	}

	if err := client.Migrate(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to run migrations")
	}

	return nil
}

// OpenMigratedDB opens the database, runs the migrations and returns the bun
// handle with its close func
func OpenMigratedDB(ctx context.Context, cfg PersistenceConfig) (*bun.DB, func(), error) {
	client, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	db := client.DB()
	closeDB := func() { _ = db.Close() }

	if err := Migrate(ctx, client); err != nil {
		closeDB()
		return nil, nil, err
	}

	return db, closeDB, nil
}
