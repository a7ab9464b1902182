package callback

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

// SQLiteStatusStore implements StatusStore using modernc.org/sqlite.
type SQLiteStatusStore struct {
	db *sql.DB
}

// NewSQLiteStatusStore opens a SQLite database at dsn and applies the
// account_enrichment_status table migration.
func NewSQLiteStatusStore(dsn string) (*SQLiteStatusStore, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "callback statusstore: open")
	}
	db.SetMaxOpenConns(10)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "callback statusstore: ping")
	}

	store := &SQLiteStatusStore{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

const statusMigration = `
CREATE TABLE IF NOT EXISTS account_enrichment_status (
	account_id          TEXT NOT NULL,
	enrichment_type     TEXT NOT NULL,
	status              TEXT NOT NULL,
	metadata            TEXT,
	failure_count       INTEGER NOT NULL DEFAULT 0,
	last_attempted_run  DATETIME,
	last_successful_run DATETIME,
	completion_percent  REAL NOT NULL DEFAULT 0,
	source              TEXT,
	error_details       TEXT,
	data_quality_score  REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (account_id, enrichment_type)
);
`

func (s *SQLiteStatusStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, statusMigration)
	return eris.Wrap(err, "callback statusstore: migrate")
}

// Get implements StatusStore.
func (s *SQLiteStatusStore) Get(ctx context.Context, accountID string, enrichmentType enrichment.Type) (*enrichment.AccountEnrichmentStatus, error) {
	var st enrichment.AccountEnrichmentStatus
	var metadataJSON, errorDetailsJSON sql.NullString
	var lastAttempted, lastSuccessful sql.NullTime
	row := s.db.QueryRowContext(ctx,
		`SELECT account_id, enrichment_type, status, metadata, failure_count,
		        last_attempted_run, last_successful_run, completion_percent,
		        source, error_details, data_quality_score
		 FROM account_enrichment_status WHERE account_id = ? AND enrichment_type = ?`,
		accountID, string(enrichmentType),
	)
	var et string
	err := row.Scan(&st.Account, &et, &st.Status, &metadataJSON, &st.FailureCount,
		&lastAttempted, &lastSuccessful, &st.CompletionPercent,
		&st.Source, &errorDetailsJSON, &st.DataQualityScore)
	if err == sql.ErrNoRows {
		return nil, enrichment.NewNotFoundError("no account enrichment status for account=%s enrichment_type=%s", accountID, enrichmentType)
	}
	if err != nil {
		return nil, eris.Wrap(err, "callback statusstore: get")
	}
	st.EnrichmentType = enrichment.Type(et)
	if lastAttempted.Valid {
		st.LastAttemptedRun = lastAttempted.Time
	}
	if lastSuccessful.Valid {
		st.LastSuccessfulRun = lastSuccessful.Time
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &st.Metadata); err != nil {
			return nil, eris.Wrap(err, "callback statusstore: unmarshal metadata")
		}
	}
	if errorDetailsJSON.Valid && errorDetailsJSON.String != "" {
		if err := json.Unmarshal([]byte(errorDetailsJSON.String), &st.ErrorDetails); err != nil {
			return nil, eris.Wrap(err, "callback statusstore: unmarshal error_details")
		}
	}
	return &st, nil
}

// Update implements StatusStore as an upsert.
func (s *SQLiteStatusStore) Update(ctx context.Context, status enrichment.AccountEnrichmentStatus) error {
	metadataJSON, err := json.Marshal(status.Metadata)
	if err != nil {
		return eris.Wrap(err, "callback statusstore: marshal metadata")
	}
	var errorDetailsJSON []byte
	if status.ErrorDetails != nil {
		errorDetailsJSON, err = json.Marshal(status.ErrorDetails)
		if err != nil {
			return eris.Wrap(err, "callback statusstore: marshal error_details")
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO account_enrichment_status
		 (account_id, enrichment_type, status, metadata, failure_count, last_attempted_run,
		  last_successful_run, completion_percent, source, error_details, data_quality_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id, enrichment_type) DO UPDATE SET
		   status = excluded.status,
		   metadata = excluded.metadata,
		   failure_count = excluded.failure_count,
		   last_attempted_run = excluded.last_attempted_run,
		   last_successful_run = excluded.last_successful_run,
		   completion_percent = excluded.completion_percent,
		   source = excluded.source,
		   error_details = excluded.error_details,
		   data_quality_score = excluded.data_quality_score`,
		status.Account, string(status.EnrichmentType), status.Status, string(metadataJSON), status.FailureCount,
		nullTime(status.LastAttemptedRun), nullTime(status.LastSuccessfulRun), status.CompletionPercent,
		status.Source, string(errorDetailsJSON), status.DataQualityScore,
	)
	return eris.Wrap(err, "callback statusstore: update")
}

// Close releases the underlying database handle.
func (s *SQLiteStatusStore) Close() error {
	return s.db.Close()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
