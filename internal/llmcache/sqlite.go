package llmcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // pure-Go SQLite driver.

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and applies the cache table
// migration.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "llmcache sqlite: open")
	}
	db.SetMaxOpenConns(10)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "llmcache sqlite: ping")
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

const llmCacheMigration = `
CREATE TABLE IF NOT EXISTS llm_cache (
	cache_key      TEXT PRIMARY KEY,
	provider       TEXT NOT NULL,
	model          TEXT NOT NULL,
	prompt         TEXT NOT NULL,
	is_json        INTEGER NOT NULL DEFAULT 0,
	operation_tag  TEXT,
	temperature    REAL,
	has_temperature INTEGER NOT NULL DEFAULT 0,
	response_data  TEXT,
	response_text  TEXT,
	token_usage    TEXT,
	created_at     DATETIME NOT NULL,
	expires_at     DATETIME NOT NULL,
	tenant_id      TEXT
);

CREATE INDEX IF NOT EXISTS idx_llm_cache_expires_at ON llm_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_llm_cache_operation_tag ON llm_cache(operation_tag);
`

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, llmCacheMigration)
	return eris.Wrap(err, "llmcache sqlite: migrate")
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, cacheKey string) (*enrichment.LLMCacheRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cache_key, provider, model, prompt, is_json, operation_tag, temperature, has_temperature,
		        response_data, response_text, token_usage, created_at, expires_at, tenant_id
		 FROM llm_cache WHERE cache_key = ?`,
		cacheKey,
	)

	var rec enrichment.LLMCacheRecord
	var operationTag, responseData, responseText, tokenUsageJSON, tenantID sql.NullString
	var temperature sql.NullFloat64
	var hasTemperature bool

	err := row.Scan(&rec.CacheKey, &rec.Provider, &rec.Model, &rec.Prompt, &rec.IsJSON,
		&operationTag, &temperature, &hasTemperature,
		&responseData, &responseText, &tokenUsageJSON, &rec.CreatedAt, &rec.ExpiresAt, &tenantID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "llmcache sqlite: get")
	}

	rec.OperationTag = operationTag.String
	rec.ResponseText = responseText.String
	rec.TenantID = tenantID.String
	if hasTemperature {
		t := temperature.Float64
		rec.Temperature = &t
	}
	if responseData.Valid && responseData.String != "" {
		rec.ResponseData = []byte(responseData.String)
	}
	if tokenUsageJSON.Valid {
		if err := json.Unmarshal([]byte(tokenUsageJSON.String), &rec.TokenUsage); err != nil {
			return nil, false, eris.Wrap(err, "llmcache sqlite: unmarshal token usage")
		}
	}
	return &rec, true, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, rec enrichment.LLMCacheRecord) error {
	tokenUsageJSON, err := json.Marshal(rec.TokenUsage)
	if err != nil {
		return eris.Wrap(err, "llmcache sqlite: marshal token usage")
	}

	var temperature *float64
	hasTemperature := rec.Temperature != nil
	if hasTemperature {
		temperature = rec.Temperature
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO llm_cache
		 (cache_key, provider, model, prompt, is_json, operation_tag, temperature, has_temperature,
		  response_data, response_text, token_usage, created_at, expires_at, tenant_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CacheKey, rec.Provider, rec.Model, rec.Prompt, rec.IsJSON, rec.OperationTag,
		temperature, hasTemperature,
		string(rec.ResponseData), rec.ResponseText, string(tokenUsageJSON),
		rec.CreatedAt.UTC(), rec.ExpiresAt.UTC(), rec.TenantID,
	)
	return eris.Wrap(err, "llmcache sqlite: put")
}

// DeleteExpired implements Store.
func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM llm_cache WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, eris.Wrap(err, "llmcache sqlite: delete expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "llmcache sqlite: rows affected")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
