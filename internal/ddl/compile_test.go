package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakerunner/internal/domain"
)

func TestCompileDuckDB(t *testing.T) {
	tests := []struct {
		name   string
		table  string
		fields []domain.Field
		want   string
	}{
		{
			name:  "scalar columns",
			table: "orders",
			fields: []domain.Field{
				{Name: "id", Type: domain.FieldTypeInt64},
				{Name: "amount", Type: domain.FieldTypeDouble, Nullable: true},
				{Name: "note", Type: domain.FieldTypeString, Nullable: true},
			},
			want: `CREATE TABLE "orders" ("id" BIGINT NOT NULL, "amount" DOUBLE, "note" VARCHAR)`,
		},
		{
			name:  "timestamp and bool",
			table: "events",
			fields: []domain.Field{
				{Name: "at", Type: domain.FieldTypeTimestamp},
				{Name: "ok", Type: domain.FieldTypeBool, Nullable: true},
			},
			want: `CREATE TABLE "events" ("at" TIMESTAMP NOT NULL, "ok" BOOLEAN)`,
		},
		{
			name:  "nested struct",
			table: "users",
			fields: []domain.Field{
				{Name: "id", Type: domain.FieldTypeInt64},
				{Name: "address", Type: domain.FieldTypeStruct, Nullable: true, Fields: []domain.Field{
					{Name: "city", Type: domain.FieldTypeString, Nullable: true},
					{Name: "zip", Type: domain.FieldTypeInt32, Nullable: true},
				}},
			},
			want: `CREATE TABLE "users" ("id" BIGINT NOT NULL, "address" STRUCT("city" VARCHAR, "zip" INTEGER))`,
		},
		{
			// STRUCT entries are bare "name TYPE" pairs; a NOT NULL inside
			// the struct would be rejected by the engine's type parser.
			name:  "struct with non-nullable member",
			table: "users",
			fields: []domain.Field{
				{Name: "address", Type: domain.FieldTypeStruct, Nullable: true, Fields: []domain.Field{
					{Name: "city", Type: domain.FieldTypeString},
					{Name: "apt", Type: domain.FieldTypeString, Nullable: true},
				}},
			},
			want: `CREATE TABLE "users" ("address" STRUCT("city" VARCHAR, "apt" VARCHAR))`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(tt.table, tt.fields, "duckdb")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileClickHouse(t *testing.T) {
	fields := []domain.Field{
		{Name: "id", Type: domain.FieldTypeInt64},
		{Name: "price", Type: domain.FieldTypeDouble, Nullable: true},
		{Name: "meta", Type: domain.FieldTypeStruct, Fields: []domain.Field{
			{Name: "source", Type: domain.FieldTypeString},
			{Name: "tag", Type: domain.FieldTypeString, Nullable: true},
		}},
	}

	got, err := Compile("trades", fields, "clickhouse")
	require.NoError(t, err)
	assert.Equal(t,
		"CREATE TABLE `trades` (`id` Int64, `price` Nullable(Float64), `meta` Tuple(`source` String, `tag` Nullable(String))) ENGINE = MergeTree ORDER BY tuple()",
		got)
}

func TestCompileInt64MapsToIntegerTypeInBothDialects(t *testing.T) {
	fields := []domain.Field{{Name: "n", Type: domain.FieldTypeInt64}}

	duck, err := Compile("t", fields, "duckdb")
	require.NoError(t, err)
	ch, err := Compile("t", fields, "clickhouse")
	require.NoError(t, err)

	assert.Contains(t, duck, "BIGINT")
	assert.Contains(t, ch, "Int64")
}

func TestCompileDeterministic(t *testing.T) {
	fields := []domain.Field{
		{Name: "id", Type: domain.FieldTypeInt64},
		{Name: "payload", Type: domain.FieldTypeStruct, Nullable: true, Fields: []domain.Field{
			{Name: "raw", Type: domain.FieldTypeBytes, Nullable: true},
		}},
	}

	for _, eng := range []string{"duckdb", "clickhouse"} {
		first, err := Compile("t", fields, eng)
		require.NoError(t, err)
		second, err := Compile("t", fields, eng)
		require.NoError(t, err)
		assert.Equal(t, first, second, "engine %s", eng)
	}
}

func TestCompileErrors(t *testing.T) {
	t.Run("unsupported field type", func(t *testing.T) {
		_, err := Compile("t", []domain.Field{{Name: "x", Type: "decimal128"}}, "duckdb")
		require.Error(t, err)
		var unsupported *domain.UnsupportedTypeError
		assert.ErrorAs(t, err, &unsupported)
	})

	t.Run("unknown engine", func(t *testing.T) {
		_, err := Compile("t", []domain.Field{{Name: "x", Type: domain.FieldTypeInt64}}, "presto")
		var unknown *domain.UnknownEngineError
		assert.ErrorAs(t, err, &unknown)
	})

	t.Run("empty fields", func(t *testing.T) {
		_, err := Compile("t", nil, "duckdb")
		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation)
	})

	t.Run("bad table name", func(t *testing.T) {
		_, err := Compile("drop table; --", []domain.Field{{Name: "x", Type: domain.FieldTypeInt64}}, "duckdb")
		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation)
	})

	t.Run("bad field name", func(t *testing.T) {
		_, err := Compile("t", []domain.Field{{Name: `x" INTEGER); DROP TABLE y; --`, Type: domain.FieldTypeInt64}}, "duckdb")
		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation)
	})

	t.Run("empty struct", func(t *testing.T) {
		_, err := Compile("t", []domain.Field{{Name: "s", Type: domain.FieldTypeStruct}}, "duckdb")
		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation)
	})
}

func TestEngines(t *testing.T) {
	assert.Equal(t, []string{"clickhouse", "duckdb"}, Engines())
}
