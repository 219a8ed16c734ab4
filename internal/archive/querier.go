package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Go2NetShield/internal/config"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// SummaryRequest filters the per-source summary. Zero values mean no filter.
type SummaryRequest struct {
	IP    string
	Since time.Time
	Limit int
}

// SourceSummary aggregates the archived events of one source and label.
type SourceSummary struct {
	IPOrigin       string    `json:"ip_origin"`
	Classification string    `json:"classification"`
	Events         uint64    `json:"events"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// Querier answers analytics questions over the archive.
type Querier interface {
	Summarize(ctx context.Context, req SummaryRequest) ([]SourceSummary, error)
}

type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(ctx context.Context, cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

const defaultSummaryLimit = 100

// buildSummaryQuery returns the statement and its positional arguments.
func buildSummaryQuery(req SummaryRequest) (string, []interface{}) {
	var query strings.Builder
	query.WriteString(`
		SELECT
			IPOrigin,
			Classification,
			count() AS Events,
			min(Timestamp) AS FirstSeen,
			max(Timestamp) AS LastSeen
		FROM analysis_events`)

	var whereClauses []string
	args := []interface{}{}
	if req.IP != "" {
		whereClauses = append(whereClauses, "IPOrigin = ?")
		args = append(args, req.IP)
	}
	if !req.Since.IsZero() {
		whereClauses = append(whereClauses, "Timestamp >= ?")
		args = append(args, req.Since)
	}
	if len(whereClauses) > 0 {
		query.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSummaryLimit
	}
	query.WriteString(" GROUP BY IPOrigin, Classification ORDER BY Events DESC LIMIT ?")
	args = append(args, limit)

	return query.String(), args
}

func (q *clickhouseQuerier) Summarize(ctx context.Context, req SummaryRequest) ([]SourceSummary, error) {
	query, args := buildSummaryQuery(req)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute summary query: %w", err)
	}
	defer rows.Close()

	var out []SourceSummary
	for rows.Next() {
		var s SourceSummary
		if err := rows.Scan(&s.IPOrigin, &s.Classification, &s.Events, &s.FirstSeen, &s.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read summary rows: %w", err)
	}
	return out, nil
}
