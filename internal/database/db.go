package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/iliyamo/class-reservation/internal/config"
)

// Open connects to MySQL and verifies the connection.
func Open(cfg config.DBConfig) (*sql.DB, error) {
	return open(cfg, false)
}

// OpenForMigrations is Open with multi-statement execution enabled, which
// the migration files need.  Do not use the returned handle for request
// traffic.
func OpenForMigrations(cfg config.DBConfig) (*sql.DB, error) {
	return open(cfg, true)
}

func open(cfg config.DBConfig, multi bool) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(cfg, multi))
	if err != nil {
		return nil, err
	}

	// Pool settings
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// DSN builds the driver connection string.  parseTime maps DATETIME to
// time.Time, loc=UTC keeps times consistent, and every session gets the
// configured InnoDB lock-wait timeout so a blocked capacity lock fails
// fast with error 1205 instead of hanging the request.
func DSN(cfg config.DBConfig, multi bool) string {
	auth := cfg.User
	if cfg.Pass != "" {
		auth = fmt.Sprintf("%s:%s", cfg.User, cfg.Pass)
	}
	params := url.Values{}
	params.Set("charset", "utf8mb4")
	params.Set("parseTime", "true")
	params.Set("loc", "UTC")
	if cfg.LockWaitTimeout > 0 {
		secs := int(cfg.LockWaitTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		params.Set("innodb_lock_wait_timeout", fmt.Sprint(secs))
	}
	if multi {
		params.Set("multiStatements", "true")
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?%s", auth, cfg.Host, cfg.Port, cfg.Name, params.Encode())
}
