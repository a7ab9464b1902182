package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

type fakeCatalog struct {
	columnsForEntityType []string
	edges                []enrichment.ColumnDependency
	touched              []string
}

func (f *fakeCatalog) ColumnsForEntityType(ctx context.Context, entityType enrichment.EntityKind) ([]string, error) {
	return f.columnsForEntityType, nil
}

func (f *fakeCatalog) DependencyEdges(ctx context.Context, seedColumns []string) ([]enrichment.ColumnDependency, error) {
	return f.edges, nil
}

func (f *fakeCatalog) TouchRefresh(ctx context.Context, columns []string) error {
	f.touched = append(f.touched, columns...)
	return nil
}

type submission struct {
	columnID string
	req      SubmitColumnRequest
}

type fakeSubmitter struct {
	submitted []submission
	err       error
}

func (f *fakeSubmitter) SubmitCustomColumn(ctx context.Context, columnID string, req SubmitColumnRequest) error {
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, submission{columnID: columnID, req: req})
	return nil
}

func dep(dependent, required string) enrichment.ColumnDependency {
	return enrichment.ColumnDependency{DependentColumnID: dependent, RequiredColumnID: required}
}

func TestStartOrchestrated_ExpandsAndOrdersByDependency(t *testing.T) {
	catalog := &fakeCatalog{
		edges: []enrichment.ColumnDependency{dep("company_size", "tech_stack")},
	}
	submitter := &fakeSubmitter{}
	o := New(catalog, submitter, nil)

	receipt, err := o.StartOrchestrated(context.Background(), StartRequest{
		TenantID:  "t1",
		RequestID: "r1",
		EntityIDs: []string{"e1", "e2"},
		Columns:   []string{"company_size"},
		BatchSize: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"tech_stack", "company_size"}, receipt.Columns)
	assert.Equal(t, "tech_stack", receipt.FirstColumn)
	require.Len(t, submitter.submitted, 1)
	assert.Equal(t, "tech_stack", submitter.submitted[0].columnID)
	assert.Equal(t, []string{"company_size"}, submitter.submitted[0].req.OrchestrationData.NextColumns)
	assert.ElementsMatch(t, receipt.Columns, catalog.touched)
}

func TestStartOrchestrated_ResolvesByEntityTypeWhenColumnsEmpty(t *testing.T) {
	catalog := &fakeCatalog{columnsForEntityType: []string{"a", "b"}}
	submitter := &fakeSubmitter{}
	o := New(catalog, submitter, nil)

	receipt, err := o.StartOrchestrated(context.Background(), StartRequest{EntityType: "account"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, receipt.Columns)
}

func TestStartOrchestrated_CycleFallsBackToOriginalOrder(t *testing.T) {
	catalog := &fakeCatalog{
		edges: []enrichment.ColumnDependency{dep("a", "b"), dep("b", "a")},
	}
	submitter := &fakeSubmitter{}
	o := New(catalog, submitter, nil)

	receipt, err := o.StartOrchestrated(context.Background(), StartRequest{Columns: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, receipt.Columns)
}

func TestStartOrchestrated_NoColumnsIsValidationError(t *testing.T) {
	catalog := &fakeCatalog{}
	o := New(catalog, &fakeSubmitter{}, nil)

	_, err := o.StartOrchestrated(context.Background(), StartRequest{EntityType: "account"})
	assert.True(t, enrichment.IsValidation(err))
}

func TestHandleColumnCompletion_SubmitsNextColumn(t *testing.T) {
	submitter := &fakeSubmitter{}
	o := New(&fakeCatalog{}, submitter, nil)

	receipt, err := o.HandleColumnCompletion(context.Background(), CompletionRequest{
		OrchestrationID: "orch-1",
		CompletedColumn: "tech_stack",
		Status:          enrichment.StatusCompleted,
		NextColumns:     []string{"company_size", "industry"},
	})
	require.NoError(t, err)
	assert.True(t, receipt.Submitted)
	assert.Equal(t, "company_size", receipt.NextColumn)
	require.Len(t, submitter.submitted, 1)
	assert.Equal(t, []string{"industry"}, submitter.submitted[0].req.OrchestrationData.NextColumns)
}

func TestHandleColumnCompletion_DoneWhenNoNextColumns(t *testing.T) {
	o := New(&fakeCatalog{}, &fakeSubmitter{}, nil)
	receipt, err := o.HandleColumnCompletion(context.Background(), CompletionRequest{Status: enrichment.StatusCompleted})
	require.NoError(t, err)
	assert.True(t, receipt.Done)
}

func TestHandleColumnCompletion_StopsOnFailure(t *testing.T) {
	submitter := &fakeSubmitter{}
	o := New(&fakeCatalog{}, submitter, nil)

	receipt, err := o.HandleColumnCompletion(context.Background(), CompletionRequest{
		CompletedColumn: "tech_stack",
		Status:          enrichment.StatusFailed,
		NextColumns:     []string{"company_size"},
	})
	require.NoError(t, err)
	assert.True(t, receipt.Stopped)
	assert.Empty(t, submitter.submitted)
}
