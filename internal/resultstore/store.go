// Package resultstore implements the terminal-callback result store with
// transparent batching (spec §4.8): large array payloads are split into
// master/child rows so no single row exceeds a configured size, and
// reassembled transparently on read.
package resultstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// Row is one persisted result row (master, child, or unbatched).
type Row struct {
	AccountID       string
	LeadID          string
	EnrichmentType  string
	Status          string
	CallbackPayload json.RawMessage
	IsBatched       bool
	BatchInfo       *enrichment.BatchInfo
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Backend is the persistence contract a storage implementation provides.
type Backend interface {
	// Insert appends a new row (result rows are append-only; reads take
	// the most recent by updated_at).
	Insert(ctx context.Context, row Row) error
	// Latest returns the most recently updated row for
	// (accountID, enrichmentType, leadID), or ok=false if none exists.
	Latest(ctx context.Context, accountID, enrichmentType, leadID string) (*Row, bool, error)
	// ChildRows returns every child row for a given master job/data type,
	// in no particular order (Store sorts by BatchIndex).
	ChildRows(ctx context.Context, accountID, jobID, dataType string) ([]Row, error)
}

// Config tunes the batching thresholds named in spec §4.8.
type Config struct {
	Enabled              bool
	BatchSize            int
	BatchThreshold       int
	MaxConcurrentInserts int
	InsertDelay          time.Duration
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		BatchSize:            100,
		BatchThreshold:       50,
		MaxConcurrentInserts: 4,
		InsertDelay:          10 * time.Millisecond,
	}
}

// arrayFields lists the processed_data arrays eligible for batching, in
// the order spec §4.8 names them.
var arrayFields = []string{"structured_leads", "qualified_leads", "all_leads"}

// Store implements the write/read/resend operations over a Backend.
type Store struct {
	backend Backend
	cfg     Config
}

// New constructs a Store.
func New(backend Backend, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchThreshold <= 0 {
		cfg.BatchThreshold = 50
	}
	if cfg.MaxConcurrentInserts <= 0 {
		cfg.MaxConcurrentInserts = 4
	}
	return &Store{backend: backend, cfg: cfg}
}

// Store persists a terminal callback payload (spec §4.8 write path).
// Non-terminal payloads are ignored, matching the source semantics:
// only status=="completed" produces a stored row.
func (s *Store) Store(ctx context.Context, accountID, leadID, jobID, enrichmentType string, event enrichment.CallbackEvent) error {
	if event.Status != enrichment.StatusCompleted {
		return nil
	}

	processedData, err := decodeProcessedData(event.ProcessedData)
	if err != nil {
		return eris.Wrap(err, "resultstore: decode processed_data")
	}

	arrays := extractArrays(processedData)
	maxLen := 0
	for _, a := range arrays {
		if len(a) > maxLen {
			maxLen = len(a)
		}
	}

	now := time.Now()
	if !s.cfg.Enabled || maxLen < s.cfg.BatchThreshold {
		payload, err := json.Marshal(event)
		if err != nil {
			return eris.Wrap(err, "resultstore: marshal payload")
		}
		return s.backend.Insert(ctx, Row{
			AccountID: accountID, LeadID: leadID, EnrichmentType: enrichmentType,
			Status: string(event.Status), CallbackPayload: payload, IsBatched: false,
			CreatedAt: now, UpdatedAt: now,
		})
	}

	return s.storeBatched(ctx, accountID, leadID, jobID, enrichmentType, event, processedData, arrays, now)
}

func (s *Store) storeBatched(ctx context.Context, accountID, leadID, jobID, enrichmentType string, event enrichment.CallbackEvent, processedData map[string]json.RawMessage, arrays map[string][]json.RawMessage, now time.Time) error {
	dataTypes := make(map[string]enrichment.BatchDataType, len(arrays))
	for name, items := range arrays {
		batches := chunkCount(len(items), s.cfg.BatchSize)
		dataTypes[name] = enrichment.BatchDataType{Count: len(items), Batches: batches, BatchSize: s.cfg.BatchSize}
		delete(processedData, name)
	}

	masterPayload, err := buildMasterPayload(event, processedData)
	if err != nil {
		return err
	}
	masterInfo := &enrichment.BatchInfo{
		IsMaster: true, JobID: jobID, DataTypes: dataTypes, CreatedAt: now,
	}

	if err := s.backend.Insert(ctx, Row{
		AccountID: accountID, LeadID: leadID, EnrichmentType: enrichmentType,
		Status: string(event.Status), CallbackPayload: masterPayload,
		IsBatched: true, BatchInfo: masterInfo, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return eris.Wrap(err, "resultstore: insert master row")
	}

	return s.insertChildRows(ctx, accountID, leadID, jobID, enrichmentType, arrays, now)
}

func (s *Store) insertChildRows(ctx context.Context, accountID, leadID, jobID, enrichmentType string, arrays map[string][]json.RawMessage, now time.Time) error {
	sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrentInserts))
	var firstErr error

	for dataType, items := range arrays {
		batches := chunkJSON(items, s.cfg.BatchSize)
		for idx, batch := range batches {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			childPayload, err := json.Marshal(batch)
			sem.Release(1)
			if err != nil {
				if firstErr == nil {
					firstErr = eris.Wrap(err, "resultstore: marshal child batch")
				}
				continue
			}

			startIdx := idx * s.cfg.BatchSize
			endIdx := startIdx + len(batch)
			info := &enrichment.BatchInfo{
				IsMaster: false, JobID: jobID, DataType: dataType,
				BatchIndex: idx, TotalBatches: len(batches),
				StartIndex: startIdx, EndIndex: endIdx, ItemsCount: len(batch),
			}

			childEnrichmentType := enrichmentType + "_" + dataType + "_batch_" + itoa(idx)
			if err := s.backend.Insert(ctx, Row{
				AccountID: accountID, LeadID: leadID, EnrichmentType: childEnrichmentType,
				Status: "batch", CallbackPayload: childPayload,
				IsBatched: true, BatchInfo: info, CreatedAt: now, UpdatedAt: now,
			}); err != nil && firstErr == nil {
				firstErr = eris.Wrapf(err, "resultstore: insert child row %s", childEnrichmentType)
			}

			if s.cfg.InsertDelay > 0 {
				time.Sleep(s.cfg.InsertDelay)
			}
		}
	}
	return firstErr
}

// Get implements the read path (spec §4.8): fetch the latest row and, if
// batched, reassemble every data type from its child rows in batch-index
// order.
func (s *Store) Get(ctx context.Context, accountID, leadID, enrichmentType string) (*enrichment.CallbackEvent, error) {
	row, ok, err := s.backend.Latest(ctx, accountID, enrichmentType, leadID)
	if err != nil {
		return nil, eris.Wrap(err, "resultstore: get latest")
	}
	if !ok {
		return nil, enrichment.NewNotFoundError("no result stored for account=%s lead=%s enrichment_type=%s", accountID, leadID, enrichmentType)
	}

	var event enrichment.CallbackEvent
	if err := json.Unmarshal(row.CallbackPayload, &event); err != nil {
		return nil, eris.Wrap(err, "resultstore: unmarshal stored payload")
	}
	if !row.IsBatched || row.BatchInfo == nil || !row.BatchInfo.IsMaster {
		return &event, nil
	}

	processedData, err := decodeProcessedData(event.ProcessedData)
	if err != nil {
		return nil, eris.Wrap(err, "resultstore: decode master processed_data")
	}

	for dataType := range row.BatchInfo.DataTypes {
		children, err := s.backend.ChildRows(ctx, accountID, row.BatchInfo.JobID, dataType)
		if err != nil {
			return nil, eris.Wrapf(err, "resultstore: child rows for %s", dataType)
		}
		sortByBatchIndex(children)

		items, err := concatChildItems(children)
		if err != nil {
			return nil, eris.Wrapf(err, "resultstore: concat child items for %s", dataType)
		}
		itemsJSON, err := json.Marshal(items)
		if err != nil {
			return nil, eris.Wrap(err, "resultstore: marshal reassembled array")
		}
		processedData[dataType] = itemsJSON
	}

	event.ProcessedData, err = json.Marshal(processedData)
	if err != nil {
		return nil, eris.Wrap(err, "resultstore: marshal reassembled processed_data")
	}
	return &event, nil
}

// Resend reconstructs the stored terminal callback and re-emits it
// through emit, enabling replay without recomputation.
func (s *Store) Resend(ctx context.Context, accountID, leadID, enrichmentType string, emit func(context.Context, enrichment.CallbackEvent) error) error {
	event, err := s.Get(ctx, accountID, leadID, enrichmentType)
	if err != nil {
		return err
	}
	return emit(ctx, *event)
}
