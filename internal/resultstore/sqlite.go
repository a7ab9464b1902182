package resultstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // pure-Go SQLite driver.
)

// SQLiteBackend implements Backend using modernc.org/sqlite.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens a SQLite database at dsn and applies the
// results table migration.
func NewSQLiteBackend(dsn string) (*SQLiteBackend, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "resultstore sqlite: open")
	}
	db.SetMaxOpenConns(10)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "resultstore sqlite: ping")
	}

	backend := &SQLiteBackend{db: db}
	if err := backend.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return backend, nil
}

const resultsMigration = `
CREATE TABLE IF NOT EXISTS results (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id       TEXT NOT NULL,
	lead_id          TEXT NOT NULL DEFAULT '',
	enrichment_type  TEXT NOT NULL,
	status           TEXT NOT NULL,
	callback_payload TEXT NOT NULL,
	is_batched       INTEGER NOT NULL DEFAULT 0,
	batch_info       TEXT,
	job_id           TEXT,
	data_type        TEXT,
	batch_index      INTEGER,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_lookup ON results(account_id, enrichment_type, lead_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_results_children ON results(account_id, job_id, data_type, batch_index);
`

func (b *SQLiteBackend) migrate(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, resultsMigration)
	return eris.Wrap(err, "resultstore sqlite: migrate")
}

// Insert implements Backend.
func (b *SQLiteBackend) Insert(ctx context.Context, row Row) error {
	var batchInfoJSON []byte
	var jobID, dataType string
	var batchIndex int
	if row.BatchInfo != nil {
		var err error
		batchInfoJSON, err = json.Marshal(row.BatchInfo)
		if err != nil {
			return eris.Wrap(err, "resultstore sqlite: marshal batch_info")
		}
		jobID = row.BatchInfo.JobID
		dataType = row.BatchInfo.DataType
		batchIndex = row.BatchInfo.BatchIndex
	}

	_, err := b.db.ExecContext(ctx,
		`INSERT INTO results
		 (account_id, lead_id, enrichment_type, status, callback_payload, is_batched, batch_info, job_id, data_type, batch_index, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.AccountID, row.LeadID, row.EnrichmentType, row.Status, string(row.CallbackPayload),
		row.IsBatched, string(batchInfoJSON), jobID, dataType, batchIndex,
		row.CreatedAt.UTC(), row.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "resultstore sqlite: insert")
}

// Latest implements Backend.
func (b *SQLiteBackend) Latest(ctx context.Context, accountID, enrichmentType, leadID string) (*Row, bool, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT account_id, lead_id, enrichment_type, status, callback_payload, is_batched, batch_info, created_at, updated_at
		 FROM results WHERE account_id = ? AND enrichment_type = ? AND lead_id = ?
		 ORDER BY updated_at DESC LIMIT 1`,
		accountID, enrichmentType, leadID,
	)
	return scanRow(row)
}

// ChildRows implements Backend.
func (b *SQLiteBackend) ChildRows(ctx context.Context, accountID, jobID, dataType string) ([]Row, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT account_id, lead_id, enrichment_type, status, callback_payload, is_batched, batch_info, created_at, updated_at
		 FROM results WHERE account_id = ? AND job_id = ? AND data_type = ?`,
		accountID, jobID, dataType,
	)
	if err != nil {
		return nil, eris.Wrap(err, "resultstore sqlite: child rows")
	}
	defer rows.Close() //nolint:errcheck

	var out []Row
	for rows.Next() {
		r, _, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "resultstore sqlite: child rows iterate")
}

// Close releases the underlying database handle.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRow(row scannable) (*Row, bool, error) {
	var r Row
	var batchInfoJSON sql.NullString

	err := row.Scan(&r.AccountID, &r.LeadID, &r.EnrichmentType, &r.Status, &r.CallbackPayload,
		&r.IsBatched, &batchInfoJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "resultstore sqlite: scan row")
	}

	if batchInfoJSON.Valid && batchInfoJSON.String != "" {
		if err := json.Unmarshal([]byte(batchInfoJSON.String), &r.BatchInfo); err != nil {
			return nil, false, eris.Wrap(err, "resultstore sqlite: unmarshal batch_info")
		}
	}
	return &r, true, nil
}
