package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/bananalabs-oss/lobby/internal/models"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

// Every SQLite transaction takes the write lock at BEGIN so that
// check-then-write sequences in the lobby cannot interleave.
const sqliteOptions = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_txlock=immediate"

// Connect opens either a SQLite ("sqlite://path") or a Postgres
// ("postgres://...") database behind bun.
func Connect(databaseURL string) (*bun.DB, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return connectPostgres(databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return connectSQLite(strings.TrimPrefix(databaseURL, "sqlite://"))
	default:
		return nil, fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

func connectSQLite(path string) (*bun.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	sqldb, err := sql.Open("sqlite", path+sep+sqliteOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Connected to SQLite: %s", path)
	return db, nil
}

func connectPostgres(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Connected to Postgres")
	return db, nil
}

func Migrate(ctx context.Context, db *bun.DB) error {
	log.Printf("Running database migrations...")

	_, err := db.NewCreateTable().
		Model((*models.Game)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create table for %T: %w", (*models.Game)(nil), err)
	}

	_, err = db.NewCreateTable().
		Model((*models.SignedUser)(nil)).
		IfNotExists().
		ForeignKey(`("game_id") REFERENCES "game" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create table for %T: %w", (*models.SignedUser)(nil), err)
	}

	indexes := []struct {
		name  string
		query string
	}{
		{
			// Memberships are removed whenever a game goes inactive, so a
			// plain unique index limits a user to one live game.
			"idx_signed_user_user",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_signed_user_user ON signed_user (user_id)",
		},
		{
			"idx_game_status_created",
			"CREATE INDEX IF NOT EXISTS idx_game_status_created ON game (status, when_created)",
		},
	}

	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx.query); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	log.Printf("Migrations complete")
	return nil
}
