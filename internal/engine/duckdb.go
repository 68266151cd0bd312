package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"lakerunner/internal/domain"
)

var _ Adapter = (*DuckDBAdapter)(nil)

// DuckDBAdapter executes queries against an embedded in-process DuckDB.
// DuckDB accepts one query context per connection, so the pool is pinned to
// a single connection and the descriptor advertises MaxConcurrency 1 — the
// dispatch scheduler reads that from the descriptor rather than hardcoding
// it.
type DuckDBAdapter struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenDuckDB opens the embedded engine. An empty path opens an in-memory
// database.
func OpenDuckDB(path string, logger *slog.Logger) (*DuckDBAdapter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	return &DuckDBAdapter{db: db, logger: logger}, nil
}

// Descriptor returns the static adapter descriptor.
func (a *DuckDBAdapter) Descriptor() domain.EngineDescriptor {
	return domain.EngineDescriptor{ID: "duckdb", MaxConcurrency: 1, SupportsPlan: true}
}

// Execute runs the query and returns the engine-native result.
func (a *DuckDBAdapter) Execute(ctx context.Context, sqlText string) (*RawResult, error) {
	start := time.Now()

	// Plan capture is best-effort: EXPLAIN fails on statements DuckDB does
	// not plan (e.g. DDL), which is not a reason to fail the job.
	plan := a.capturePlan(ctx, sqlText)

	rows, err := a.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, classifyDuckDBError(ctx, err)
	}

	columns, typeNames, data, err := scanAll(rows)
	if err != nil {
		return nil, classifyDuckDBError(ctx, err)
	}

	return &RawResult{
		Columns:   columns,
		TypeNames: typeNames,
		Rows:      data,
		WallTime:  time.Since(start),
		PlanText:  plan,
	}, nil
}

func (a *DuckDBAdapter) capturePlan(ctx context.Context, sqlText string) string {
	rows, err := a.db.QueryContext(ctx, "EXPLAIN "+sqlText)
	if err != nil {
		a.logger.Debug("duckdb plan capture skipped", "error", err)
		return ""
	}
	_, _, data, err := scanAll(rows)
	if err != nil {
		return ""
	}

	var b strings.Builder
	for _, row := range data {
		for _, v := range row {
			if s, ok := v.(string); ok {
				b.WriteString(s)
				b.WriteByte('\n')
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Ping verifies the embedded database is usable.
func (a *DuckDBAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close releases the underlying connection.
func (a *DuckDBAdapter) Close() error {
	return a.db.Close()
}

func classifyDuckDBError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return domain.ErrAdapter(domain.ErrorKindCancelled, "query cancelled: %v", ctx.Err())
	}
	return domain.ErrAdapter(domain.ErrorKindAdapterFailure, "%v", err)
}
