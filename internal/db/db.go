package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Connect opens the database for driver and applies migrations.
func Connect(ctx context.Context, driver, dsn string, log *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := runMigrations(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("db.migrations.applied", "driver", driver)
	return db, nil
}

func runMigrations(ctx context.Context, db *sqlx.DB, driver string) error {
	timestamp := "TIMESTAMPTZ"
	if driver == DriverSQLite {
		timestamp = "TIMESTAMP"
	}
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            sender_id TEXT NOT NULL,
            receiver_id TEXT NOT NULL,
            text TEXT NOT NULL DEFAULT '',
            image TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'sent',
            deleted BOOLEAN NOT NULL DEFAULT FALSE,
            created_at ` + timestamp + ` NOT NULL,
            edited_at ` + timestamp + ` NULL,
            CHECK (status IN ('sent', 'delivered', 'read'))
        );`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (sender_id, receiver_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS messages_receiver_status_idx ON messages (receiver_id, status);`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
