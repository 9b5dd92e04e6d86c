package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// Config defines SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
	// TxLock is the BEGIN mode for database/sql transactions
	// (deferred, immediate, exclusive). Immediate makes concurrent writers
	// queue on busy_timeout instead of failing on lock upgrade.
	TxLock string
}

// DefaultConfig returns the recommended configuration for the lifecycle store.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 8,
		TxLock:       "immediate",
	}
}

// DSN builds the connection string. PRAGMAs go into the DSN so they apply
// to every connection in the pool.
func DSN(dbPath string, cfg Config) string {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())
	if cfg.TxLock != "" {
		dsn += "&_txlock=" + cfg.TxLock
	}
	return dsn
}

// Open initializes a SQLite connection pool with WAL and busy_timeout enforced.
func Open(dbPath string, cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite", DSN(dbPath, cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	return db, nil
}
