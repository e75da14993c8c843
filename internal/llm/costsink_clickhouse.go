package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"
)

// ClickHouseCostSink appends every cost record to an append-only table,
// grounded on the teacher's internal/agentd ClickHouse integration
// (metrics_clickhouse.go / clickhouse_schema.go) for connection setup and
// schema creation, adapted here to the cost-accounting shape SPEC_FULL's
// DOMAIN STACK section names for the Provider Gateway rather than the
// teacher's token-usage dashboard queries.
type ClickHouseCostSink struct {
	conn    clickhouse.Conn
	table   string
	timeout time.Duration
}

// NewClickHouseCostSink opens a connection to dsn and ensures the records
// table exists. Returns (nil, nil) if dsn is empty, so callers can wire this
// unconditionally and fall back to NoopCostSink only when Redis-style
// deployments genuinely omit ClickHouse.
func NewClickHouseCostSink(ctx context.Context, dsn, table string) (*ClickHouseCostSink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	if table == "" {
		table = "provider_cost_records"
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		recorded_at DateTime64(3) DEFAULT now64(3),
		document_id String,
		provider_id String,
		model_id String,
		input_tokens UInt32,
		output_tokens UInt32,
		cost_usd Float64
	) ENGINE = MergeTree() ORDER BY (document_id, recorded_at)`, table)
	if err := conn.Exec(ctxInit, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create clickhouse cost table: %w", err)
	}

	return &ClickHouseCostSink{conn: conn, table: table, timeout: 5 * time.Second}, nil
}

// Record satisfies CostSink. Failures are logged, not returned, so a
// ClickHouse outage never blocks the Gateway's hot path (§4.A).
func (s *ClickHouseCostSink) Record(documentID, providerID, modelID string, inputTokens, outputTokens int, costUSD float64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	stmt := fmt.Sprintf("INSERT INTO %s (document_id, provider_id, model_id, input_tokens, output_tokens, cost_usd) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	if err := s.conn.Exec(ctx, stmt, documentID, providerID, modelID, inputTokens, outputTokens, costUSD); err != nil {
		log.Error().Err(err).Str("provider_id", providerID).Msg("clickhouse cost sink: insert failed")
	}
}

// Close releases the underlying connection.
func (s *ClickHouseCostSink) Close() error {
	return s.conn.Close()
}
