package engine

import (
	"strings"

	"lakerunner/internal/domain"
)

// Normalize converts an engine-native result into the canonical tabular
// representation. Pure transform: semantically identical results produce
// identical canonical output regardless of which engine ran the query.
func Normalize(raw *RawResult) *domain.QueryResult {
	columns := make([]domain.ResultColumn, len(raw.Columns))
	for i, name := range raw.Columns {
		native := ""
		if i < len(raw.TypeNames) {
			native = raw.TypeNames[i]
		}
		columns[i] = domain.ResultColumn{Name: name, Type: CanonicalType(native)}
	}

	rows := raw.Rows
	if rows == nil {
		rows = make([][]interface{}, 0)
	}

	stats := domain.QueryStats{
		RowsReturned: len(rows),
		WallTimeMs:   raw.WallTime.Milliseconds(),
	}
	if raw.PlanText != "" {
		plan := raw.PlanText
		stats.PlanText = &plan
	}

	return &domain.QueryResult{Columns: columns, Rows: rows, Stats: stats}
}

// CanonicalType maps an engine-native type name onto the shared canonical
// enumeration. Handles both DuckDB's vocabulary (BIGINT, VARCHAR, STRUCT)
// and ClickHouse's (Int64, Nullable(String), Tuple).
func CanonicalType(native string) domain.CanonicalType {
	t := strings.ToUpper(strings.TrimSpace(native))
	for strings.HasPrefix(t, "NULLABLE(") && strings.HasSuffix(t, ")") {
		t = t[len("NULLABLE(") : len(t)-1]
	}

	switch {
	case containsAny(t, "STRUCT", "TUPLE", "MAP", "ARRAY", "LIST", "NESTED", "JSON"):
		return domain.TypeNested
	case containsAny(t, "BOOL"):
		return domain.TypeBoolean
	case containsAny(t, "TIMESTAMP", "DATETIME", "DATE"):
		return domain.TypeTimestamp
	case containsAny(t, "INTERVAL"): // before the INT check, which would swallow it
		return domain.TypeString
	case containsAny(t, "INT"): // INTEGER, BIGINT, SMALLINT, UINT64, HUGEINT
		return domain.TypeInteger
	case containsAny(t, "FLOAT", "DOUBLE", "REAL", "DECIMAL", "NUMERIC"):
		return domain.TypeFloat
	default:
		return domain.TypeString
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
