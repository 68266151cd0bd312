// Package ddl compiles canonical schema definitions into engine-specific
// CREATE TABLE statements. Compilation is a pure function of (fields,
// dialect): no I/O, and byte-identical output for identical input.
package ddl

import (
	"lakerunner/internal/domain"
)

// Dialect holds the per-engine DDL rules as data: the scalar type map, the
// identifier quoting style, how composites and nullability are rendered,
// and any trailing clause the engine requires. Adding a target engine means
// adding one Dialect value here, not branching in the registry.
type Dialect struct {
	Engine string

	// Types maps canonical scalar field types to the engine's column types.
	// A field type absent from the map (other than struct) is unsupported.
	Types map[domain.FieldType]string

	// Quote renders an identifier in the engine's quoting style.
	Quote func(string) string

	// Composite renders a nested field from its already-rendered members,
	// each of the form "name TYPE".
	Composite func(members []string) string

	// Nullable applies the engine's nullability rendering to a rendered
	// column type. DuckDB columns are nullable unless told otherwise;
	// ClickHouse is the opposite and wraps nullable scalars.
	Nullable func(typ string, nullable bool, composite bool) string

	// MemberNullable does the same for a composite member. Composite
	// grammars differ from column definitions: DuckDB STRUCT entries are
	// bare "name TYPE" pairs and reject column constraints, while
	// ClickHouse Tuple members take the Nullable(...) wrapper.
	MemberNullable func(typ string, nullable bool, composite bool) string

	// TableSuffix is appended after the column list, e.g. the engine and
	// partition clause ClickHouse requires.
	TableSuffix string
}

// DuckDB is the dialect of the embedded engine.
var DuckDB = Dialect{
	Engine: "duckdb",
	Types: map[domain.FieldType]string{
		domain.FieldTypeBool:      "BOOLEAN",
		domain.FieldTypeInt32:     "INTEGER",
		domain.FieldTypeInt64:     "BIGINT",
		domain.FieldTypeFloat:     "FLOAT",
		domain.FieldTypeDouble:    "DOUBLE",
		domain.FieldTypeString:    "VARCHAR",
		domain.FieldTypeBytes:     "BLOB",
		domain.FieldTypeTimestamp: "TIMESTAMP",
	},
	Quote: QuoteDouble,
	Composite: func(members []string) string {
		return "STRUCT(" + joinMembers(members) + ")"
	},
	Nullable: func(typ string, nullable, composite bool) string {
		if !nullable {
			return typ + " NOT NULL"
		}
		return typ
	},
	// STRUCT entries cannot carry NOT NULL; member nullability is not
	// expressible in DuckDB's struct type.
	MemberNullable: func(typ string, nullable, composite bool) string {
		return typ
	},
}

// ClickHouse is the dialect of the distributed engine.
var ClickHouse = Dialect{
	Engine: "clickhouse",
	Types: map[domain.FieldType]string{
		domain.FieldTypeBool:      "Bool",
		domain.FieldTypeInt32:     "Int32",
		domain.FieldTypeInt64:     "Int64",
		domain.FieldTypeFloat:     "Float32",
		domain.FieldTypeDouble:    "Float64",
		domain.FieldTypeString:    "String",
		domain.FieldTypeBytes:     "String",
		domain.FieldTypeTimestamp: "DateTime64(3)",
	},
	Quote: QuoteBacktick,
	Composite: func(members []string) string {
		return "Tuple(" + joinMembers(members) + ")"
	},
	Nullable: func(typ string, nullable, composite bool) string {
		// ClickHouse cannot wrap Tuple in Nullable.
		if nullable && !composite {
			return "Nullable(" + typ + ")"
		}
		return typ
	},
	MemberNullable: func(typ string, nullable, composite bool) string {
		if nullable && !composite {
			return "Nullable(" + typ + ")"
		}
		return typ
	},
	TableSuffix: " ENGINE = MergeTree ORDER BY tuple()",
}

// dialects is the registration table, keyed by engine id.
var dialects = map[string]*Dialect{
	DuckDB.Engine:     &DuckDB,
	ClickHouse.Engine: &ClickHouse,
}

// DialectFor returns the dialect registered for the engine id.
func DialectFor(engineID string) (*Dialect, error) {
	d, ok := dialects[engineID]
	if !ok {
		return nil, domain.ErrUnknownEngine("no DDL dialect for engine %q", engineID)
	}
	return d, nil
}

// Engines returns the ids of all registered dialects, sorted.
func Engines() []string {
	out := make([]string, 0, len(dialects))
	for id := range dialects {
		out = append(out, id)
	}
	sortStrings(out)
	return out
}
