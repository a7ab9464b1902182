// Package enrichment holds the typed data model exchanged between the
// task pipeline, the caches, the result store, and the callback handler.
// Everything the core itself authors is a strongly typed struct; payloads
// captured from third-party providers stay opaque JSON.
package enrichment

import (
	"encoding/json"
	"time"
)

// EntityKind distinguishes the two targets the engine enriches.
type EntityKind string

const (
	EntityAccount EntityKind = "account"
	EntityLead    EntityKind = "lead"
)

// EntityRef is an opaque reference to an account or lead. The core never
// interprets the ID; ownership of the record lives with the control plane.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

// Type is the closed set of enrichment kinds the engine knows how to run.
type Type string

const (
	TypeCompanyInfo           Type = "company_info"
	TypeGenerateLeads         Type = "generate_leads"
	TypeLeadLinkedInResearch  Type = "lead_linkedin_research"
	TypeCustomColumn          Type = "custom_column"
)

// Status is the lifecycle state of a callback event or stored result.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusInProgress Status = "in_progress"
	StatusPartial    Status = "partial"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusBatch      Status = "batch"
)

// ThinkingBudget is a per-call hint limiting a provider's internal
// reasoning tokens.
type ThinkingBudget string

const (
	ThinkingZero   ThinkingBudget = "zero"
	ThinkingLow    ThinkingBudget = "low"
	ThinkingMedium ThinkingBudget = "medium"
	ThinkingHigh   ThinkingBudget = "high"
)

// SearchContextSize hints at how much web evidence a search-grounded LLM
// call should gather.
type SearchContextSize string

const (
	SearchContextLow    SearchContextSize = "low"
	SearchContextMedium SearchContextSize = "medium"
	SearchContextHigh   SearchContextSize = "high"
)

// AIConfig carries per-call LLM configuration. Zero values mean "use the
// task/provider default".
type AIConfig struct {
	Provider       string         `json:"provider,omitempty"`
	Model          string         `json:"model,omitempty"`
	Temperature    *float64       `json:"temperature,omitempty"`
	ThinkingBudget ThinkingBudget `json:"thinking_budget,omitempty"`
	UseInternet    bool           `json:"use_internet,omitempty"`
	Unstructured   bool           `json:"unstructured,omitempty"`
}

// OrchestrationData threads column-generation continuation across task
// boundaries; see internal/orchestrator.
type OrchestrationData struct {
	NextColumns []string `json:"next_columns,omitempty"`
	EntityIDs   []string `json:"entity_ids,omitempty"`
	BatchSize   int      `json:"batch_size,omitempty"`
	TenantID    string   `json:"tenant_id,omitempty"`
	RequestID   string   `json:"request_id,omitempty"`
}

// TaskPayload is the input to one task run.
type TaskPayload struct {
	JobID              string                     `json:"job_id" validate:"required"`
	RequestID          string                     `json:"request_id,omitempty"`
	EnrichmentType     Type                       `json:"enrichment_type" validate:"required"`
	EntityIDs          []string                   `json:"entity_ids" validate:"required,min=1"`
	ContextData        map[string]json.RawMessage `json:"context_data,omitempty"`
	TenantID           string                     `json:"tenant_id,omitempty"`
	BatchSize          int                        `json:"batch_size,omitempty"`
	ConcurrentRequests int                        `json:"concurrent_requests,omitempty"`
	AIConfig           AIConfig                   `json:"ai_config,omitempty"`
	OrchestrationData  *OrchestrationData         `json:"orchestration_data,omitempty"`
	AttemptNumber      int                        `json:"attempt_number,omitempty"`
	MaxRetries         int                        `json:"max_retries,omitempty"`
}

// Defaults fills in the payload's documented defaults.
func (p *TaskPayload) Defaults() {
	if p.BatchSize <= 0 {
		p.BatchSize = 10
	}
	if p.ConcurrentRequests <= 0 {
		p.ConcurrentRequests = 5
	}
}

// Pagination describes one page of a paginated enrichment stream.
type Pagination struct {
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

// ErrorDetails is the structured shape attached to failed/error states.
type ErrorDetails struct {
	ErrorType       string  `json:"error_type,omitempty"`
	Message         string  `json:"message,omitempty"`
	Stage           string  `json:"stage,omitempty"`
	ProcessingTimeS float64 `json:"processing_time_s,omitempty"`
}

// CallbackEvent is emitted to the control plane at every stage boundary
// and at task completion.
type CallbackEvent struct {
	JobID                string             `json:"job_id"`
	AccountID            string             `json:"account_id"`
	LeadID               string             `json:"lead_id,omitempty"`
	EnrichmentType       Type               `json:"enrichment_type"`
	Status               Status             `json:"status"`
	Source               string             `json:"source,omitempty"`
	CompletionPercentage float64            `json:"completion_percentage,omitempty"`
	ProcessedData        json.RawMessage    `json:"processed_data,omitempty"`
	ErrorDetails         *ErrorDetails      `json:"error_details,omitempty"`
	Pagination           *Pagination        `json:"pagination,omitempty"`
	OrchestrationData    *OrchestrationData `json:"orchestration_data,omitempty"`
}

// ResponseType is the closed set of shapes a custom column's answer may take.
type ResponseType string

const (
	ResponseString     ResponseType = "string"
	ResponseJSONObject ResponseType = "json_object"
	ResponseBoolean    ResponseType = "boolean"
	ResponseNumber     ResponseType = "number"
	ResponseEnum       ResponseType = "enum"
)

// ValueStatus is the per-entity outcome of a custom column run.
type ValueStatus string

const (
	ValuePending   ValueStatus = "pending"
	ValueCompleted ValueStatus = "completed"
	ValueError     ValueStatus = "error"
)

// CustomColumnValue is the result of evaluating one column for one entity.
// Exactly one of the Value* fields is populated, matching the column's
// declared ResponseType.
type CustomColumnValue struct {
	ColumnID        string          `json:"column_id"`
	EntityID        string          `json:"entity_id"`
	ValueString     *string         `json:"value_string,omitempty"`
	ValueJSON       json.RawMessage `json:"value_json,omitempty"`
	ValueBoolean    *bool           `json:"value_boolean,omitempty"`
	ValueNumber     *float64        `json:"value_number,omitempty"`
	ValueEnum       *string         `json:"value_enum,omitempty"`
	ConfidenceScore float64         `json:"confidence_score"`
	Rationale       string          `json:"rationale,omitempty"`
	Status          ValueStatus     `json:"status"`
	ErrorDetails    *ErrorDetails   `json:"error_details,omitempty"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// ResponseConfig carries the tenant-authored constraints on a column's answer.
type ResponseConfig struct {
	AllowedValues   []string `json:"allowed_values,omitempty"`
	Examples        []string `json:"examples,omitempty"`
	ValidationRules []string `json:"validation_rules,omitempty"`
}

// Column is declared externally (by the control plane); the core only
// reads the fields relevant to generation.
type Column struct {
	ID             string         `json:"id"`
	EntityType     EntityKind     `json:"entity_type"`
	ResponseType   ResponseType   `json:"response_type"`
	ResponseConfig ResponseConfig `json:"response_config,omitempty"`
	Question       string         `json:"question"`
	Description    string         `json:"description,omitempty"`
	AIConfig       AIConfig       `json:"ai_config,omitempty"`
}

// ColumnDependency is a directed edge (dependent -> required) between two
// columns of the same entity type.
type ColumnDependency struct {
	DependentColumnID string `json:"dependent_column_id"`
	RequiredColumnID  string `json:"required_column_id"`
}

// BatchDataType describes one array that was split out of a large payload.
type BatchDataType struct {
	Count     int `json:"count"`
	Batches   int `json:"batches"`
	BatchSize int `json:"batch_size"`
}

// BatchInfo is carried on both master and child result-store rows.
type BatchInfo struct {
	IsMaster     bool                     `json:"is_master"`
	JobID        string                   `json:"job_id"`
	DataTypes    map[string]BatchDataType `json:"data_types,omitempty"`
	DataType     string                   `json:"data_type,omitempty"`
	BatchIndex   int                      `json:"batch_index,omitempty"`
	TotalBatches int                      `json:"total_batches,omitempty"`
	StartIndex   int                      `json:"start_index,omitempty"`
	EndIndex     int                      `json:"end_index,omitempty"`
	ItemsCount   int                      `json:"items_count,omitempty"`
	CreatedAt    time.Time                `json:"created_at,omitempty"`
}

// ResultRecord is one row of the result store.
type ResultRecord struct {
	AccountID       string          `json:"account_id"`
	LeadID          string          `json:"lead_id,omitempty"`
	EnrichmentType  string          `json:"enrichment_type"`
	Status          Status          `json:"status"`
	CallbackPayload json.RawMessage `json:"callback_payload"`
	IsBatched       bool            `json:"is_batched"`
	BatchInfo       *BatchInfo      `json:"batch_info,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// EnrichmentSourceLeadGen is written once, on the final page of a
// generate_leads stream.
type EnrichmentSourceLeadGen struct {
	LastRun           time.Time      `json:"last_run"`
	LeadsFound        int            `json:"leads_found"`
	QualifiedLeads    int            `json:"qualified_leads"`
	ScoreDistribution map[string]int `json:"score_distribution,omitempty"`
}

// AccountEnrichmentStatus is owned by the control plane but read and
// written by the callback handler (§4.7).
type AccountEnrichmentStatus struct {
	Account           string         `json:"account"`
	EnrichmentType    Type           `json:"enrichment_type"`
	Status            string         `json:"status"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	FailureCount      int            `json:"failure_count"`
	LastAttemptedRun  time.Time      `json:"last_attempted_run"`
	LastSuccessfulRun time.Time      `json:"last_successful_run"`
	CompletionPercent float64        `json:"completion_percent"`
	Source            string         `json:"source,omitempty"`
	ErrorDetails      *ErrorDetails  `json:"error_details,omitempty"`
	DataQualityScore  float64        `json:"data_quality_score"`
}

// ProcessedPages returns the set of pages already merged, reading
// metadata["processed_pages"] defensively (it round-trips through JSON as
// []any of float64).
func (s *AccountEnrichmentStatus) ProcessedPages() map[int]bool {
	pages := map[int]bool{}
	if s == nil || s.Metadata == nil {
		return pages
	}
	raw, ok := s.Metadata["processed_pages"]
	if !ok {
		return pages
	}
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if f, ok := item.(float64); ok {
				pages[int(f)] = true
			}
		}
	case []int:
		for _, p := range v {
			pages[p] = true
		}
	}
	return pages
}
