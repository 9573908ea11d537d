package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/iliyamo/storefront/internal/config"
)

// modernc registers itself as "sqlite", which sqlx does not know about.
func init() { sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION) }

// Open connects to the configured store and verifies the connection.
func Open(cfg config.DBConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		return OpenMySQL(cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.Name)
	case config.DriverSQLite:
		return OpenSQLite(cfg.SQLitePath)
	default:
		return nil, errors.Errorf("unsupported driver %q", cfg.Driver)
	}
}

// MySQLDSN builds a go-sql-driver DSN. Extra params ("multiStatements=true")
// are appended to the query string.
func MySQLDSN(user, pass, host, port, name string, extra ...string) string {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	params := append([]string{"charset=utf8mb4", "parseTime=true", "loc=UTC"}, extra...)
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?%s", auth, host, port, name, strings.Join(params, "&"))
}

// OpenMySQL connects to MySQL and verifies the connection.
func OpenMySQL(user, pass, host, port, name string) (*sqlx.DB, error) {
	db, err := sqlx.Open(config.DriverMySQL, MySQLDSN(user, pass, host, port, name))
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, ping(db)
}

// SQLiteDSN enables foreign keys, waits on a locked database instead of
// failing, and takes the write lock when a transaction begins.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

// OpenSQLite opens an embedded database file. The pool holds a single
// connection so transactions from concurrent requests queue in order.
func OpenSQLite(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open(config.DriverSQLite, SQLiteDSN(path))
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, ping(db)
}

func ping(db *sqlx.DB) error {
	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return errors.Wrap(err, "ping database")
	}
	return nil
}
