package apicache

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // pure-Go SQLite driver.

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn, embedding the same
// busy-timeout/WAL/synchronous pragmas used throughout this codebase so
// every pooled connection behaves the same way under concurrent batch
// fan-out.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "apicache sqlite: open")
	}
	db.SetMaxOpenConns(10)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "apicache sqlite: ping")
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

const apiCacheMigration = `
CREATE TABLE IF NOT EXISTS api_cache (
	cache_key         TEXT PRIMARY KEY,
	method            TEXT NOT NULL,
	url               TEXT NOT NULL,
	params            TEXT,
	headers_sanitised TEXT,
	response_body     BLOB NOT NULL,
	response_status   INTEGER NOT NULL,
	created_at        DATETIME NOT NULL,
	expires_at        DATETIME NOT NULL,
	tenant_id         TEXT
);

CREATE INDEX IF NOT EXISTS idx_api_cache_expires_at ON api_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_api_cache_tenant ON api_cache(tenant_id);
`

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, apiCacheMigration)
	return eris.Wrap(err, "apicache sqlite: migrate")
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, cacheKey string) (*enrichment.APICacheRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cache_key, method, url, params, headers_sanitised, response_body, response_status, created_at, expires_at, tenant_id
		 FROM api_cache WHERE cache_key = ?`,
		cacheKey,
	)

	var rec enrichment.APICacheRecord
	var paramsJSON, headersJSON sql.NullString
	var tenantID sql.NullString

	err := row.Scan(&rec.CacheKey, &rec.Method, &rec.URL, &paramsJSON, &headersJSON,
		&rec.ResponseBody, &rec.ResponseStatus, &rec.CreatedAt, &rec.ExpiresAt, &tenantID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "apicache sqlite: get")
	}

	if paramsJSON.Valid {
		if err := json.Unmarshal([]byte(paramsJSON.String), &rec.Params); err != nil {
			return nil, false, eris.Wrap(err, "apicache sqlite: unmarshal params")
		}
	}
	if headersJSON.Valid {
		if err := json.Unmarshal([]byte(headersJSON.String), &rec.HeadersSanitised); err != nil {
			return nil, false, eris.Wrap(err, "apicache sqlite: unmarshal headers")
		}
	}
	rec.TenantID = tenantID.String
	return &rec, true, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, rec enrichment.APICacheRecord) error {
	paramsJSON, err := json.Marshal(rec.Params)
	if err != nil {
		return eris.Wrap(err, "apicache sqlite: marshal params")
	}
	headersJSON, err := json.Marshal(rec.HeadersSanitised)
	if err != nil {
		return eris.Wrap(err, "apicache sqlite: marshal headers")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO api_cache
		 (cache_key, method, url, params, headers_sanitised, response_body, response_status, created_at, expires_at, tenant_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CacheKey, rec.Method, rec.URL, string(paramsJSON), string(headersJSON),
		rec.ResponseBody, rec.ResponseStatus, rec.CreatedAt.UTC(), rec.ExpiresAt.UTC(), rec.TenantID,
	)
	return eris.Wrap(err, "apicache sqlite: put")
}

// DeleteExpired implements Store.
func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "apicache sqlite: delete expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "apicache sqlite: rows affected")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
