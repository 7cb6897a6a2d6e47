package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"

	"QuicSieve/internal/config"
)

// Querier defines read access to the stored feature rows.
type Querier interface {
	Overview(ctx context.Context, window string) ([]*WindowSummary, error)
	TraceFlow(ctx context.Context, flowID string) ([]*FlowRow, error)
	Close() error
}

// WindowSummary aggregates one window category across the whole store.
type WindowSummary struct {
	Window      string  `json:"window"`
	Captures    uint64  `json:"captures"`
	Flows       uint64  `json:"flows"`
	Rows        uint64  `json:"rows"`
	TotalBytes  float64 `json:"total_bytes"`
	AvgPackets  float64 `json:"avg_packets"`
	AvgDuration float64 `json:"avg_duration"`
}

// FlowRow is one stored row of a traced flow.
type FlowRow struct {
	CaptureFile  string  `json:"capture_file"`
	Window       string  `json:"window"`
	Client       string  `json:"client"`
	Server       string  `json:"server"`
	TotalPackets float64 `json:"total_packets"`
	TotalBytes   float64 `json:"total_bytes"`
	Duration     float64 `json:"duration"`
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn  clickhouse.Conn
	table string
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn, table: cfg.Table}, nil
}

func connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})

	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Overview aggregates the store per window category. An empty window selects
// all of them.
func (q *clickhouseQuerier) Overview(ctx context.Context, window string) ([]*WindowSummary, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(fmt.Sprintf(`
		SELECT
			Window,
			uniqExact(CaptureFile) AS Captures,
			uniqExact(FlowID) AS Flows,
			COUNT(*) AS RowCount,
			SUM(total_bytes) AS TotalBytes,
			AVG(total_packets) AS AvgPackets,
			AVG(duration) AS AvgDuration
		FROM %s
	`, q.table))

	args := []interface{}{}
	if window != "" {
		queryBuilder.WriteString(" WHERE Window = ?")
		args = append(args, window)
	}
	// Window is a label column, so a plain ORDER BY would sort "10" before
	// "5". Sort full first, then windows numerically.
	queryBuilder.WriteString(" GROUP BY Window ORDER BY Window != 'full', toUInt32OrZero(Window)")

	rows, err := q.conn.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute overview query: %w", err)
	}
	defer rows.Close()

	var summaries []*WindowSummary
	for rows.Next() {
		var summary WindowSummary
		if err := rows.Scan(&summary.Window, &summary.Captures, &summary.Flows, &summary.Rows,
			&summary.TotalBytes, &summary.AvgPackets, &summary.AvgDuration); err != nil {
			return nil, fmt.Errorf("failed to scan overview result: %w", err)
		}
		summaries = append(summaries, &summary)
	}
	return summaries, nil
}

// TraceFlow returns every stored row of one flow, across captures and
// window categories.
func (q *clickhouseQuerier) TraceFlow(ctx context.Context, flowID string) ([]*FlowRow, error) {
	if flowID == "" {
		return nil, fmt.Errorf("flow id must not be empty")
	}

	query := fmt.Sprintf(`
		SELECT
			CaptureFile, Window, ClientIP, ClientPort, ServerIP, ServerPort,
			total_packets, total_bytes, duration
		FROM %s
		WHERE FlowID = ?
		ORDER BY CaptureFile, Window != 'full', toUInt32OrZero(Window)
	`, q.table)

	rows, err := q.conn.Query(ctx, query, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute trace query: %w", err)
	}
	defer rows.Close()

	var result []*FlowRow
	for rows.Next() {
		var row FlowRow
		var clientIP, clientPort, serverIP, serverPort string
		if err := rows.Scan(&row.CaptureFile, &row.Window, &clientIP, &clientPort, &serverIP, &serverPort,
			&row.TotalPackets, &row.TotalBytes, &row.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan trace result: %w", err)
		}
		row.Client = clientIP + ":" + clientPort
		row.Server = serverIP + ":" + serverPort
		result = append(result, &row)
	}
	return result, nil
}

// Close releases the connection.
func (q *clickhouseQuerier) Close() error {
	return q.conn.Close()
}
