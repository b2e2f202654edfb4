package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/anstrom/scanfold/internal/config"
	"github.com/anstrom/scanfold/internal/errors"
	"github.com/anstrom/scanfold/internal/logging"
)

const defaultTable = "documents"

// Postgres keeps documents in a single key/value table with a JSONB value.
type Postgres struct {
	db    *sqlx.DB
	table string
}

// NewPostgres connects to PostgreSQL and creates the documents table if
// it does not exist. Returned errors never contain the DSN.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password, sslMode(cfg.SSLMode),
	)

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.WrapStoreError(errors.CodeStoreConnection, "connect", "Failed to connect to database", err)
	}

	p, err := NewPostgresWithDB(ctx, db, cfg.Table)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Warn("Failed to close database connection after setup failure")
		}
		return nil, err
	}

	logging.InfoStore("Connected to database", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	return p, nil
}

// NewPostgresWithDB wraps an existing connection and ensures the schema.
func NewPostgresWithDB(ctx context.Context, db *sqlx.DB, table string) (*Postgres, error) {
	if table == "" {
		table = defaultTable
	}
	p := &Postgres{db: db, table: pq.QuoteIdentifier(table)}
	if err := p.migrate(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func sslMode(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}

func (p *Postgres) migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, p.table)

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return sanitizeDBError("migrate", "", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	var value []byte
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, p.table)
	if err := p.db.GetContext(ctx, &value, query, key); err != nil {
		return nil, sanitizeDBError("get", key, err)
	}
	return value, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, p.table)

	if _, err := p.db.ExecContext(ctx, query, key, string(value)); err != nil {
		return sanitizeDBError("set", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, p.table)
	if _, err := p.db.ExecContext(ctx, query, key); err != nil {
		return sanitizeDBError("delete", key, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// sanitizeDBError converts raw database errors into store errors that don't
// expose SQL details or credentials. The original error is kept as Cause.
func sanitizeDBError(operation, key string, err error) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, sql.ErrNoRows) {
		return notFound(key)
	}

	var storeErr *errors.StoreError
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch pqErr.Code {
		case "53100": // disk_full
			storeErr = errors.NewStoreError(errors.CodeStoreQuotaExceeded, "Database storage is full")
		case "54000": // program_limit_exceeded
			storeErr = errors.NewStoreError(errors.CodeStoreQuotaExceeded, "Record exceeds database limits")
		case "57014": // query_canceled
			storeErr = errors.NewStoreError(errors.CodeCanceled, "Database operation was canceled")
		case "57P01", "08000", "08003", "08006": // admin_shutdown, connection errors
			storeErr = errors.NewStoreError(errors.CodeStoreConnection, "Database connection error")
		}
	}
	if storeErr == nil {
		code := errors.CodeStoreWrite
		if operation == "get" {
			code = errors.CodeStoreRead
		}
		storeErr = errors.NewStoreError(code, fmt.Sprintf("Database operation failed: %s", operation))
	}

	storeErr.Operation = operation
	storeErr.Key = key
	storeErr.Cause = err
	return storeErr
}
