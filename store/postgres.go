package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
)

const pgUniqueViolation = "23505"

var postgresDialect = dialect{
	name: DriverPostgres,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id         UUID PRIMARY KEY,
			owner      TEXT NOT NULL,
			name       TEXT NOT NULL,
			path       TEXT NOT NULL,
			wsdl_path  TEXT NOT NULL,
			xsd_path   TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT projects_owner_name_key UNIQUE (owner, name)
		)`,
		`CREATE INDEX IF NOT EXISTS projects_owner_idx ON projects (owner)`,
	},
	numbered: true,
	isUniqueViolation: func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
	},
}

// OpenPostgres connects through the pgx database/sql driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return newSQLStore(ctx, db, postgresDialect)
}
