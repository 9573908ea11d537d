package database

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"

	"github.com/iliyamo/storefront/internal/config"
)

//go:embed migrations/mysql/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies every pending up migration for the configured driver.
func Migrate(cfg config.DBConfig) error {
	m, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migrate up")
	}
	return nil
}

// MigrateDown rolls back every applied migration.
func MigrateDown(cfg config.DBConfig) error {
	m, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migrate down")
	}
	return nil
}

// newMigrator opens a dedicated connection; migrate closes it together with
// the source when the caller is done.
func newMigrator(cfg config.DBConfig) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+cfg.Driver)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s migrations", cfg.Driver)
	}

	var (
		db  *sql.DB
		drv migratedb.Driver
	)
	switch cfg.Driver {
	case config.DriverMySQL:
		db, err = sql.Open(config.DriverMySQL, MySQLDSN(cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.Name, "multiStatements=true"))
		if err == nil {
			drv, err = migratemysql.WithInstance(db, &migratemysql.Config{})
		}
	case config.DriverSQLite:
		db, err = sql.Open(config.DriverSQLite, SQLiteDSN(cfg.SQLitePath))
		if err == nil {
			drv, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
		}
	default:
		err = errors.Errorf("unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		_ = src.Close()
		return nil, errors.Wrap(err, "open migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", src, cfg.Driver, drv)
	if err != nil {
		_ = drv.Close()
		_ = src.Close()
		return nil, errors.Wrap(err, "init migrate")
	}
	return m, nil
}
