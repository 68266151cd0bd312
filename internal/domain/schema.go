package domain

import "time"

// FieldType is the canonical type vocabulary of a schema field, mirroring
// structured-record definitions. Nested composites use FieldTypeStruct with
// child Fields.
type FieldType string

// Canonical schema field types.
const (
	FieldTypeBool      FieldType = "bool"
	FieldTypeInt32     FieldType = "int32"
	FieldTypeInt64     FieldType = "int64"
	FieldTypeFloat     FieldType = "float"
	FieldTypeDouble    FieldType = "double"
	FieldTypeString    FieldType = "string"
	FieldTypeBytes     FieldType = "bytes"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeStruct    FieldType = "struct"
)

// Field is one ordered entry of a schema definition.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Nullable bool      `json:"nullable"`
	Fields   []Field   `json:"fields,omitempty"` // children when Type == struct
}

// SchemaDefinition is one immutable version of a logical table's shape.
// Versions for a table form a gapless increasing sequence starting at 1.
type SchemaDefinition struct {
	TableName   string
	Version     int
	Fields      []Field
	CompiledDDL map[string]string // engine id → DDL text, computed at registration
	CreatedAt   time.Time
}

// SchemaVersionInfo is the listing metadata for one schema version.
type SchemaVersionInfo struct {
	Version    int       `json:"version"`
	FieldCount int       `json:"field_count"`
	CreatedAt  time.Time `json:"created_at"`
}
