package schema

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakerunner/internal/domain"
	"lakerunner/internal/store"
)

var (
	fieldsA = []domain.Field{
		{Name: "id", Type: domain.FieldTypeInt64},
	}
	fieldsB = []domain.Field{
		{Name: "id", Type: domain.FieldTypeInt64},
		{Name: "total", Type: domain.FieldTypeDouble, Nullable: true},
	}
)

func newTestRegistry() *Registry {
	return NewRegistry(store.NewMemorySchemaStore(), nil, nil)
}

func TestRegisterVersionSequence(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	v1, err := r.Register(ctx, "orders", fieldsA)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	v2, err := r.Register(ctx, "orders", fieldsB)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	// The first version's compiled DDL is unchanged after the second register.
	got, err := r.GetVersion(ctx, "orders", 1)
	require.NoError(t, err)
	assert.Equal(t, v1.CompiledDDL, got.CompiledDDL)
	assert.Equal(t, fieldsA, got.Fields)

	cur, err := r.GetCurrent(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 2, cur.Version)
}

func TestRegisterCompilesForEveryEngine(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	def, err := r.Register(ctx, "orders", fieldsA)
	require.NoError(t, err)

	require.Contains(t, def.CompiledDDL, "duckdb")
	require.Contains(t, def.CompiledDDL, "clickhouse")
	assert.Contains(t, def.CompiledDDL["duckdb"], "BIGINT")
	assert.Contains(t, def.CompiledDDL["clickhouse"], "Int64")
}

func TestRegisterIdenticalFieldsProduceDistinctVersions(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	v1, err := r.Register(ctx, "orders", fieldsA)
	require.NoError(t, err)
	v2, err := r.Register(ctx, "orders", fieldsA)
	require.NoError(t, err)

	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, v1.CompiledDDL, v2.CompiledDDL, "compilation is deterministic")
}

func TestRegisterUnsupportedTypeAbortsAtomically(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	_, err := r.Register(ctx, "orders", []domain.Field{{Name: "x", Type: "decimal128"}})
	require.Error(t, err)
	var unsupported *domain.UnsupportedTypeError
	assert.ErrorAs(t, err, &unsupported)

	// Nothing was stored.
	var notFound *domain.NotFoundError
	_, err = r.GetCurrent(ctx, "orders")
	assert.ErrorAs(t, err, &notFound)
}

func TestRegisterConcurrentSameTableNeverDuplicatesVersions(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	const n = 16
	var wg sync.WaitGroup
	versions := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			def, err := r.Register(ctx, "orders", fieldsA)
			if err == nil {
				versions <- def.Version
			}
		}()
	}
	wg.Wait()
	close(versions)

	seen := make(map[int]bool)
	count := 0
	for v := range versions {
		assert.False(t, seen[v], "version %d assigned twice", v)
		seen[v] = true
		count++
	}
	assert.Equal(t, n, count)
	for v := 1; v <= n; v++ {
		assert.True(t, seen[v], "version %d missing from sequence", v)
	}
}

func TestListVersions(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	var notFound *domain.NotFoundError
	_, err := r.ListVersions(ctx, "orders")
	require.ErrorAs(t, err, &notFound)

	_, err = r.Register(ctx, "orders", fieldsA)
	require.NoError(t, err)
	_, err = r.Register(ctx, "orders", fieldsB)
	require.NoError(t, err)

	infos, err := r.ListVersions(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, 1, infos[0].Version)
	assert.Equal(t, 1, infos[0].FieldCount)
	assert.Equal(t, 2, infos[1].Version)
	assert.Equal(t, 2, infos[1].FieldCount)
}

func TestGetVersionValidation(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	var validation *domain.ValidationError
	_, err := r.GetVersion(ctx, "orders", 0)
	assert.ErrorAs(t, err, &validation)

	_, err = r.Register(ctx, "", fieldsA)
	assert.ErrorAs(t, err, &validation)

	_, err = r.Register(ctx, "orders", nil)
	assert.ErrorAs(t, err, &validation)
}
