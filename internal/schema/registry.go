// Package schema provides the versioned schema registry: canonical field
// definitions keyed by logical table name, compiled into per-engine DDL at
// registration time.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lakerunner/internal/ddl"
	"lakerunner/internal/domain"
)

// Registry stores versioned schema definitions and compiles each new
// version for every registered engine dialect. Versions per table are a
// gapless increasing sequence starting at 1; definitions are immutable once
// stored.
type Registry struct {
	store   domain.SchemaStore
	engines []string
	logger  *slog.Logger

	// mu serializes Register so two concurrent registrations for the same
	// table can never compute the same version number. The store's
	// (table, version) uniqueness constraint is the backstop.
	mu sync.Mutex
}

// NewRegistry creates a registry compiling for the given engine dialects.
// With no engines given it compiles for every known dialect.
func NewRegistry(store domain.SchemaStore, engines []string, logger *slog.Logger) *Registry {
	if len(engines) == 0 {
		engines = ddl.Engines()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, engines: engines, logger: logger}
}

// Register computes the next version for the table, compiles the fields for
// every registered engine, and stores the new immutable definition.
// Compilation failures abort before anything is stored. Identical field
// lists registered twice produce two distinct versions; deduplication is a
// caller concern.
func (r *Registry) Register(ctx context.Context, tableName string, fields []domain.Field) (*domain.SchemaDefinition, error) {
	if tableName == "" {
		return nil, domain.ErrValidation("table name is required")
	}
	if len(fields) == 0 {
		return nil, domain.ErrValidation("at least one field is required")
	}

	// Compile for every dialect first: register-or-fail is atomic, so an
	// UnsupportedType in any dialect means no partial version exists.
	compiled := make(map[string]string, len(r.engines))
	for _, engineID := range r.engines {
		text, err := ddl.Compile(tableName, fields, engineID)
		if err != nil {
			return nil, fmt.Errorf("compile %q for %s: %w", tableName, engineID, err)
		}
		compiled[engineID] = text
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.store.CurrentVersion(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("current version of %q: %w", tableName, err)
	}

	def := &domain.SchemaDefinition{
		TableName:   tableName,
		Version:     current + 1,
		Fields:      fields,
		CompiledDDL: compiled,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.AppendSchema(ctx, def); err != nil {
		return nil, fmt.Errorf("store schema %q version %d: %w", tableName, def.Version, err)
	}

	r.logger.Info("schema registered",
		"table", tableName, "version", def.Version, "fields", len(fields))
	return def, nil
}

// GetCurrent returns the newest definition for the table.
func (r *Registry) GetCurrent(ctx context.Context, tableName string) (*domain.SchemaDefinition, error) {
	return r.store.GetCurrentSchema(ctx, tableName)
}

// GetVersion returns one exact version.
func (r *Registry) GetVersion(ctx context.Context, tableName string, version int) (*domain.SchemaDefinition, error) {
	if version < 1 {
		return nil, domain.ErrValidation("version must be >= 1")
	}
	return r.store.GetSchema(ctx, tableName, version)
}

// ListVersions returns version metadata oldest-first. A table with no
// registered versions yields NotFound.
func (r *Registry) ListVersions(ctx context.Context, tableName string) ([]domain.SchemaVersionInfo, error) {
	infos, err := r.store.ListSchemaVersions(ctx, tableName)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, domain.ErrNotFound("schema %q not found", tableName)
	}
	return infos, nil
}
