package apicache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver registration.

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// PostgresStore implements Store against Postgres via pgx's database/sql
// driver and sqlx, for deployments sharing a Postgres cluster across
// multiple engine instances (the SQLite backend is single-node only).
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgres opens a Postgres connection pool at dsn and applies the
// cache table migration.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "apicache postgres: connect")
	}
	db.SetMaxOpenConns(20)

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

const apiCachePostgresMigration = `
CREATE TABLE IF NOT EXISTS api_cache (
	cache_key         TEXT PRIMARY KEY,
	method            TEXT NOT NULL,
	url               TEXT NOT NULL,
	params            JSONB,
	headers_sanitised JSONB,
	response_body     BYTEA NOT NULL,
	response_status   INTEGER NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	expires_at        TIMESTAMPTZ NOT NULL,
	tenant_id         TEXT
);

CREATE INDEX IF NOT EXISTS idx_api_cache_expires_at ON api_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_api_cache_tenant ON api_cache(tenant_id);
`

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, apiCachePostgresMigration)
	return eris.Wrap(err, "apicache postgres: migrate")
}

type apiCacheRow struct {
	CacheKey         string    `db:"cache_key"`
	Method           string    `db:"method"`
	URL              string    `db:"url"`
	Params           []byte    `db:"params"`
	HeadersSanitised []byte    `db:"headers_sanitised"`
	ResponseBody     []byte    `db:"response_body"`
	ResponseStatus   int       `db:"response_status"`
	CreatedAt        time.Time `db:"created_at"`
	ExpiresAt        time.Time `db:"expires_at"`
	TenantID         *string   `db:"tenant_id"`
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, cacheKey string) (*enrichment.APICacheRecord, bool, error) {
	var row apiCacheRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM api_cache WHERE cache_key = $1`, cacheKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "apicache postgres: get")
	}

	rec := enrichment.APICacheRecord{
		CacheKey:       row.CacheKey,
		Method:         row.Method,
		URL:            row.URL,
		ResponseBody:   row.ResponseBody,
		ResponseStatus: row.ResponseStatus,
		CreatedAt:      row.CreatedAt,
		ExpiresAt:      row.ExpiresAt,
	}
	if row.TenantID != nil {
		rec.TenantID = *row.TenantID
	}
	if len(row.Params) > 0 {
		if err := json.Unmarshal(row.Params, &rec.Params); err != nil {
			return nil, false, eris.Wrap(err, "apicache postgres: unmarshal params")
		}
	}
	if len(row.HeadersSanitised) > 0 {
		if err := json.Unmarshal(row.HeadersSanitised, &rec.HeadersSanitised); err != nil {
			return nil, false, eris.Wrap(err, "apicache postgres: unmarshal headers")
		}
	}
	return &rec, true, nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, rec enrichment.APICacheRecord) error {
	paramsJSON, err := json.Marshal(rec.Params)
	if err != nil {
		return eris.Wrap(err, "apicache postgres: marshal params")
	}
	headersJSON, err := json.Marshal(rec.HeadersSanitised)
	if err != nil {
		return eris.Wrap(err, "apicache postgres: marshal headers")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_cache (cache_key, method, url, params, headers_sanitised, response_body, response_status, created_at, expires_at, tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (cache_key) DO UPDATE SET
			response_body = EXCLUDED.response_body,
			response_status = EXCLUDED.response_status,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		rec.CacheKey, rec.Method, rec.URL, paramsJSON, headersJSON,
		rec.ResponseBody, rec.ResponseStatus, rec.CreatedAt, rec.ExpiresAt, nullableString(rec.TenantID),
	)
	return eris.Wrap(err, "apicache postgres: put")
}

// DeleteExpired implements Store.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "apicache postgres: delete expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "apicache postgres: rows affected")
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
