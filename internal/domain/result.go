package domain

// CanonicalType is the shared column-type vocabulary every engine's native
// types are mapped onto. Identical results produce identical canonical
// output regardless of which engine executed the query.
type CanonicalType string

// Canonical column types.
const (
	TypeInteger   CanonicalType = "integer"
	TypeFloat     CanonicalType = "float"
	TypeString    CanonicalType = "string"
	TypeBoolean   CanonicalType = "boolean"
	TypeTimestamp CanonicalType = "timestamp"
	TypeNested    CanonicalType = "nested"
)

// ResultColumn is one column of a normalized result set.
type ResultColumn struct {
	Name string        `json:"name"`
	Type CanonicalType `json:"type"`
}

// QueryStats carries execution statistics for a completed query.
// PlanText is nil when the executing adapter does not capture plans.
type QueryStats struct {
	RowsReturned int     `json:"rows_returned"`
	WallTimeMs   int64   `json:"wall_time_ms"`
	PlanText     *string `json:"plan_text,omitempty"`
}

// QueryResult is the canonical tabular representation of a successful
// execution, identical in shape across engines.
type QueryResult struct {
	Columns []ResultColumn  `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
	Stats   QueryStats      `json:"stats"`
}
