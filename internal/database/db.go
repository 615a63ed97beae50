package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL flavour behind a *sql.DB.  Queries in the repository
// layer are portable between both; only DDL and error codes differ.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// Options describes how to reach the database.
type Options struct {
	Driver     Dialect
	User       string
	Pass       string
	Host       string
	Port       string
	Name       string
	SQLitePath string
}

// Open connects to the configured driver and verifies the connection.
func Open(opts Options) (*sql.DB, error) {
	switch opts.Driver {
	case MySQL:
		return OpenMySQL(opts.User, opts.Pass, opts.Host, opts.Port, opts.Name)
	case SQLite:
		return OpenSQLite(opts.SQLitePath)
	}
	return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
}

// OpenMySQL connects to MySQL and verifies the connection.
func OpenMySQL(user, pass, host, port, name string) (*sql.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = pass
	cfg.Net = "tcp"
	cfg.Addr = host + ":" + port
	cfg.DBName = name
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true // RowsAffected counts matched rows, not changed ones

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens (creating if needed) a SQLite file.  SQLite serialises
// writers, so the pool is capped at a single connection.
func OpenSQLite(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
