package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakerunner/internal/domain"
)

func openTestDuckDB(t *testing.T) *DuckDBAdapter {
	t.Helper()
	a, err := OpenDuckDB("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestDuckDBDescriptor(t *testing.T) {
	a := openTestDuckDB(t)
	desc := a.Descriptor()
	assert.Equal(t, "duckdb", desc.ID)
	assert.Equal(t, 1, desc.MaxConcurrency, "embedded engine is single-writer")
	assert.True(t, desc.SupportsPlan)
}

func TestDuckDBExecuteSelectOne(t *testing.T) {
	a := openTestDuckDB(t)

	raw, err := a.Execute(context.Background(), "SELECT 1 AS n")
	require.NoError(t, err)

	assert.Equal(t, []string{"n"}, raw.Columns)
	require.Len(t, raw.Rows, 1)
	require.Len(t, raw.Rows[0], 1)
	assert.EqualValues(t, 1, raw.Rows[0][0])
	assert.NotEmpty(t, raw.PlanText, "EXPLAIN output captured")
}

func TestDuckDBExecuteBadQueryClassifiedAdapterFailure(t *testing.T) {
	a := openTestDuckDB(t)

	_, err := a.Execute(context.Background(), "SELECT FROM WHERE")
	require.Error(t, err)

	var adapterErr *domain.AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, domain.ErrorKindAdapterFailure, adapterErr.Kind)
}

func TestDuckDBExecuteCancelledContext(t *testing.T) {
	a := openTestDuckDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Execute(ctx, "SELECT 1")
	require.Error(t, err)

	var adapterErr *domain.AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, domain.ErrorKindCancelled, adapterErr.Kind)
}

func TestRegistry(t *testing.T) {
	a := openTestDuckDB(t)
	reg := NewRegistry(a)

	got, err := reg.Get("duckdb")
	require.NoError(t, err)
	assert.Same(t, Adapter(a), got)

	_, err = reg.Get("unknown")
	var unknown *domain.UnknownEngineError
	assert.ErrorAs(t, err, &unknown)

	descs := reg.Descriptors()
	require.Len(t, descs, 1)
	assert.Equal(t, "duckdb", descs[0].ID)
}
