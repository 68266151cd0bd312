package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"lakerunner/internal/domain"
)

var _ domain.SchemaStore = (*SQLiteSchemaStore)(nil)

// SQLiteSchemaStore persists the append-only schema version chain in SQLite.
// The (table_name, version) primary key is the backstop for the registry's
// gapless-version invariant under concurrent registration.
type SQLiteSchemaStore struct {
	write *sql.DB
	read  *sql.DB
}

// NewSQLiteSchemaStore creates a schema store over migrated SQLite handles,
// typically from OpenSQLitePair.
func NewSQLiteSchemaStore(write, read *sql.DB) *SQLiteSchemaStore {
	return &SQLiteSchemaStore{write: write, read: read}
}

// AppendSchema stores a new immutable version.
func (s *SQLiteSchemaStore) AppendSchema(ctx context.Context, def *domain.SchemaDefinition) error {
	if def == nil || def.TableName == "" {
		return domain.ErrValidation("schema definition with table name is required")
	}
	fieldsJSON, err := json.Marshal(def.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	ddlJSON, err := json.Marshal(def.CompiledDDL)
	if err != nil {
		return fmt.Errorf("marshal ddl: %w", err)
	}

	_, err = s.write.ExecContext(ctx, `
		INSERT INTO schema_versions (table_name, version, fields_json, ddl_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, def.TableName, def.Version, string(fieldsJSON), string(ddlJSON), formatTime(def.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return domain.ErrConflict("schema %q version %d already exists", def.TableName, def.Version)
		}
		return fmt.Errorf("insert schema version: %w", err)
	}
	return nil
}

// CurrentVersion returns the highest stored version, or 0 for an unknown table.
func (s *SQLiteSchemaStore) CurrentVersion(ctx context.Context, tableName string) (int, error) {
	var version sql.NullInt64
	err := s.read.QueryRowContext(ctx, `
		SELECT MAX(version) FROM schema_versions WHERE table_name = ?
	`, tableName).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("query current version: %w", err)
	}
	return int(version.Int64), nil
}

// GetSchema returns one exact version.
func (s *SQLiteSchemaStore) GetSchema(ctx context.Context, tableName string, version int) (*domain.SchemaDefinition, error) {
	return s.getOne(ctx, `
		SELECT table_name, version, fields_json, ddl_json, created_at
		FROM schema_versions WHERE table_name = ? AND version = ?
	`, tableName, version)
}

// GetCurrentSchema returns the newest version.
func (s *SQLiteSchemaStore) GetCurrentSchema(ctx context.Context, tableName string) (*domain.SchemaDefinition, error) {
	return s.getOne(ctx, `
		SELECT table_name, version, fields_json, ddl_json, created_at
		FROM schema_versions WHERE table_name = ?
		ORDER BY version DESC LIMIT 1
	`, tableName)
}

// ListSchemaVersions returns version metadata oldest-first.
func (s *SQLiteSchemaStore) ListSchemaVersions(ctx context.Context, tableName string) ([]domain.SchemaVersionInfo, error) {
	rows, err := s.read.QueryContext(ctx, `
		SELECT version, fields_json, created_at
		FROM schema_versions WHERE table_name = ?
		ORDER BY version ASC
	`, tableName)
	if err != nil {
		return nil, fmt.Errorf("list schema versions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.SchemaVersionInfo, 0)
	for rows.Next() {
		var (
			info       domain.SchemaVersionInfo
			fieldsJSON string
			createdAt  string
		)
		if err := rows.Scan(&info.Version, &fieldsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan schema version: %w", err)
		}
		var fields []domain.Field
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, fmt.Errorf("unmarshal fields: %w", err)
		}
		info.FieldCount = len(fields)
		if info.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLiteSchemaStore) getOne(ctx context.Context, stmt string, args ...interface{}) (*domain.SchemaDefinition, error) {
	row := s.read.QueryRowContext(ctx, stmt, args...)

	var (
		def                  domain.SchemaDefinition
		fieldsJSON, ddlJSON  string
		createdAt            string
	)
	err := row.Scan(&def.TableName, &def.Version, &fieldsJSON, &ddlJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("schema not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan schema version: %w", err)
	}

	if err := json.Unmarshal([]byte(fieldsJSON), &def.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	if err := json.Unmarshal([]byte(ddlJSON), &def.CompiledDDL); err != nil {
		return nil, fmt.Errorf("unmarshal ddl: %w", err)
	}
	if def.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &def, nil
}
