package sink

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"QuicSieve/internal/config"
	"QuicSieve/internal/model"
)

// ClickHouseWriter stores feature rows in a ClickHouse table. Rows are
// buffered per capture file and sent as one batch when the file finishes.
// It implements model.RowWriter.
type ClickHouseWriter struct {
	conn  driver.Conn
	table string

	mu   sync.Mutex
	rows map[string][]*model.FeatureRow
}

// NewClickHouseWriter connects to ClickHouse, ensures the table exists and
// returns the writer.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	w := &ClickHouseWriter{
		conn:  conn,
		table: cfg.Table,
		rows:  make(map[string][]*model.FeatureRow),
	}
	if err := conn.Exec(context.Background(), w.createTableStatement()); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", cfg.Table, err)
	}
	log.Printf("Connected to ClickHouse, table %s ready", cfg.Table)
	return w, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
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

// createTableStatement builds the schema from the canonical column list so
// the table stays aligned with the CSV output.
func (w *ClickHouseWriter) createTableStatement() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", w.table)
	b.WriteString("    CaptureFile String,\n")
	b.WriteString("    FlowID      String,\n")
	b.WriteString("    Window      String,\n")
	b.WriteString("    ClientIP    String,\n")
	b.WriteString("    ClientPort  String,\n")
	b.WriteString("    ServerIP    String,\n")
	b.WriteString("    ServerPort  String,\n")
	b.WriteString("    InsertedAt  DateTime,\n")
	for i, col := range model.FeatureColumns {
		b.WriteString("    " + col + " Float64")
		if i < len(model.FeatureColumns)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(") ENGINE = MergeTree()\nPARTITION BY Window\nORDER BY (Window, CaptureFile, FlowID);")
	return b.String()
}

// WriteRow buffers one row until its capture file completes.
func (w *ClickHouseWriter) WriteRow(row *model.FeatureRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows[row.CaptureFile] = append(w.rows[row.CaptureFile], row)
	return nil
}

// FinishFile sends the buffered rows of one capture file as a single batch.
func (w *ClickHouseWriter) FinishFile(capture string) error {
	w.mu.Lock()
	rows := w.rows[capture]
	delete(w.rows, capture)
	w.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO "+w.table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	now := time.Now()
	for _, row := range rows {
		args := make([]interface{}, 0, 8+len(model.FeatureColumns))
		args = append(args,
			row.CaptureFile, row.FlowID, row.Window,
			row.Client.Addr, row.Client.Port,
			row.Server.Addr, row.Server.Port,
			now)
		for _, v := range row.Features.Row() {
			args = append(args, v)
		}
		if err := batch.Append(args...); err != nil {
			return fmt.Errorf("failed to append row to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	log.Printf("Wrote %d rows to ClickHouse for %s", len(rows), capture)
	return nil
}

// Close drops any rows still buffered and closes the connection. Buffered
// rows belong to files that never finished, and unfinished files are not
// persisted.
func (w *ClickHouseWriter) Close() error {
	w.mu.Lock()
	w.rows = make(map[string][]*model.FeatureRow)
	w.mu.Unlock()
	return w.conn.Close()
}
