package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"lakerunner/internal/domain"
)

var _ Adapter = (*ClickHouseAdapter)(nil)

// ClickHouseOptions configures the networked adapter.
type ClickHouseOptions struct {
	Addr           string
	Database       string
	Username       string
	Password       string
	MaxConcurrency int
	DialTimeout    time.Duration
}

// ClickHouseAdapter executes queries against a networked ClickHouse cluster
// through a bounded connection pool. Connection-level failures are
// classified TRANSIENT: resubmitting a new job is safe, and the manager
// itself never retries.
type ClickHouseAdapter struct {
	db     *sql.DB
	maxCon int
	logger *slog.Logger
}

// OpenClickHouse opens the networked engine adapter. MaxConcurrency bounds
// the connection pool and is advertised through the descriptor.
func OpenClickHouse(opts ClickHouseOptions, logger *slog.Logger) (*ClickHouseAdapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("clickhouse address is required")
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout: opts.DialTimeout,
	})
	db.SetMaxOpenConns(opts.MaxConcurrency)
	db.SetMaxIdleConns(opts.MaxConcurrency)
	db.SetConnMaxLifetime(time.Hour)

	return &ClickHouseAdapter{db: db, maxCon: opts.MaxConcurrency, logger: logger}, nil
}

// Descriptor returns the static adapter descriptor.
func (a *ClickHouseAdapter) Descriptor() domain.EngineDescriptor {
	return domain.EngineDescriptor{ID: "clickhouse", MaxConcurrency: a.maxCon, SupportsPlan: true}
}

// Execute runs the query and returns the engine-native result.
func (a *ClickHouseAdapter) Execute(ctx context.Context, sqlText string) (*RawResult, error) {
	start := time.Now()

	plan := a.capturePlan(ctx, sqlText)

	rows, err := a.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, classifyClickHouseError(ctx, err)
	}

	columns, typeNames, data, err := scanAll(rows)
	if err != nil {
		return nil, classifyClickHouseError(ctx, err)
	}

	return &RawResult{
		Columns:   columns,
		TypeNames: typeNames,
		Rows:      data,
		WallTime:  time.Since(start),
		PlanText:  plan,
	}, nil
}

func (a *ClickHouseAdapter) capturePlan(ctx context.Context, sqlText string) string {
	rows, err := a.db.QueryContext(ctx, "EXPLAIN PLAN "+sqlText)
	if err != nil {
		a.logger.Debug("clickhouse plan capture skipped", "error", err)
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

// Ping verifies the cluster is reachable.
func (a *ClickHouseAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close releases the connection pool.
func (a *ClickHouseAdapter) Close() error {
	return a.db.Close()
}

func classifyClickHouseError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return domain.ErrAdapter(domain.ErrorKindCancelled, "query cancelled: %v", ctx.Err())
	}
	if isConnectionError(err) {
		return domain.ErrAdapter(domain.ErrorKindTransient, "%v", err)
	}
	return domain.ErrAdapter(domain.ErrorKindAdapterFailure, "%v", err)
}

// isConnectionError reports whether err looks like a connection-level
// failure rather than a query rejection.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	connHints := []string{"connection refused", "connection reset", "broken pipe", "i/o timeout", "eof", "dial tcp"}
	for _, hint := range connHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
