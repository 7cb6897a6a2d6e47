package extract

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"QuicSieve/internal/config"
	"QuicSieve/internal/model"
	"QuicSieve/internal/sink"
)

// fakeDecoder replays canned records keyed by capture base name. Records are
// sent as copies so flows from different files never share state.
type fakeDecoder struct {
	records map[string][]model.PacketRecord
	errs    map[string]error
	skipped map[string]int
	sent    int64
}

func (d *fakeDecoder) Decode(path string, out chan<- *model.PacketRecord) (int, error) {
	defer close(out)
	name := filepath.Base(path)
	if err := d.errs[name]; err != nil {
		return 0, err
	}
	for i := range d.records[name] {
		rec := d.records[name][i]
		out <- &rec
		atomic.AddInt64(&d.sent, 1)
	}
	return d.skipped[name], nil
}

// flowRecords builds n alternating client/server packets starting at start.
func flowRecords(client, server model.Endpoint, n int, start float64) []model.PacketRecord {
	recs := make([]model.PacketRecord, 0, n)
	for i := 0; i < n; i++ {
		rec := model.PacketRecord{
			Timestamp: start + float64(i)*0.01,
			Size:      100 + 10*i,
			Src:       client,
			Dst:       server,
			Type:      model.TypeOneRTT,
			Spin:      model.SpinZero,
		}
		if i%2 == 1 {
			rec.Src, rec.Dst = server, client
		}
		recs = append(recs, rec)
	}
	return recs
}

func writeCaptures(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create capture dir: %v", err)
		}
		if err := os.WriteFile(path, []byte("capture"), 0644); err != nil {
			t.Fatalf("Failed to write capture file: %v", err)
		}
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer file.Close()
	lines, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse %s: %v", path, err)
	}
	return lines
}

func tempDirs(t *testing.T) (string, string) {
	t.Helper()
	captures, err := os.MkdirTemp("", "extract-captures-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(captures) })
	output, err := os.MkdirTemp("", "extract-output-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(output) })
	return captures, output
}

func TestDiscover_RecursiveSorted(t *testing.T) {
	captures, _ := tempDirs(t)
	writeCaptures(t, captures, "b/two.pcap", "a/one.pcapng", "c/UPPER.PCAP", "z.pcap", "notes.txt")

	files, err := Discover(captures)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	want := []string{
		filepath.Join(captures, "a/one.pcapng"),
		filepath.Join(captures, "b/two.pcap"),
		filepath.Join(captures, "c/UPPER.PCAP"),
		filepath.Join(captures, "z.pcap"),
	}
	if len(files) != len(want) {
		t.Fatalf("Expected %d capture files, got %d: %v", len(want), len(files), files)
	}
	for i, path := range want {
		if files[i] != path {
			t.Errorf("File %d: expected %s, got %s", i, path, files[i])
		}
	}
}

func TestChunkFlows(t *testing.T) {
	build := func(n int) []*model.Flow {
		flows := make([]*model.Flow, n)
		for i := range flows {
			flows[i] = &model.Flow{ID: fmt.Sprintf("flow-%d", i)}
		}
		return flows
	}

	tests := []struct {
		name     string
		flows    int
		size     int
		wantLens []int
	}{
		{"even remainder", 10, 4, []int{4, 4, 2}},
		{"single chunk", 3, 5, []int{3}},
		{"unit chunks", 4, 1, []int{1, 1, 1, 1}},
		{"empty", 0, 4, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flows := build(tt.flows)
			chunks := chunkFlows(flows, tt.size)
			if len(chunks) != len(tt.wantLens) {
				t.Fatalf("Expected %d chunks, got %d", len(tt.wantLens), len(chunks))
			}
			seen := 0
			for i, chunk := range chunks {
				if len(chunk) != tt.wantLens[i] {
					t.Errorf("Chunk %d: expected %d flows, got %d", i, tt.wantLens[i], len(chunk))
				}
				for _, flow := range chunk {
					if flow != flows[seen] {
						t.Errorf("Chunk %d reordered flows", i)
					}
					seen++
				}
			}
		})
	}
}

func TestExtractor_EndToEnd(t *testing.T) {
	captures, output := tempDirs(t)
	writeCaptures(t, captures, "a.pcap", "b.pcap")

	clientA := model.Endpoint{Addr: "10.0.0.1", Port: "443"}
	serverA := model.Endpoint{Addr: "10.0.0.2", Port: "4433"}
	clientB := model.Endpoint{Addr: "10.0.0.3", Port: "5000"}
	serverB := model.Endpoint{Addr: "10.0.0.4", Port: "4433"}

	// a.pcap carries a 12-packet flow and a 3-packet flow, b.pcap exactly
	// one 5-packet flow. With windows 5 and 10 that pins every row count.
	aRecords := append(flowRecords(clientA, serverA, 12, 100.0),
		flowRecords(clientB, serverB, 3, 200.0)...)
	decoder := &fakeDecoder{
		records: map[string][]model.PacketRecord{
			"a.pcap": aRecords,
			"b.pcap": flowRecords(clientA, serverB, 5, 300.0),
		},
		skipped: map[string]int{"a.pcap": 2},
	}

	csvSink, err := sink.NewCSVSink(output)
	if err != nil {
		t.Fatalf("Failed to create CSV sink: %v", err)
	}
	defer csvSink.Close()

	cfg := config.ExtractConfig{
		CaptureRoot:      captures,
		OutputRoot:       output,
		Windows:          []int{5, 10},
		NumWorkers:       2,
		QueueCapacity:    8,
		MaxFlowsPerChunk: 1,
	}
	summary, err := New(cfg, decoder, []model.RowWriter{csvSink}, nil).Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 1. Run totals.
	if summary.FilesTotal != 2 || summary.FilesOK != 2 || summary.FilesFailed != 0 {
		t.Errorf("Expected 2 ok files, got total=%d ok=%d failed=%d",
			summary.FilesTotal, summary.FilesOK, summary.FilesFailed)
	}
	if summary.Flows != 3 {
		t.Errorf("Expected 3 flows, got %d", summary.Flows)
	}
	if summary.Rows != 6 {
		t.Errorf("Expected 6 rows (3 full, 2 window-5, 1 window-10), got %d", summary.Rows)
	}

	// 2. Per-file reports.
	reports := make(map[string]*model.FileReport)
	for _, r := range summary.Files {
		reports[r.File] = r
	}
	a := reports["a.pcap"]
	if a == nil || a.Status != model.StatusOK {
		t.Fatalf("Expected ok report for a.pcap, got %+v", a)
	}
	if a.Flows != 2 || a.SkippedLines != 2 {
		t.Errorf("a.pcap report: expected 2 flows and 2 skipped lines, got %+v", a)
	}
	if a.Rows[model.WindowFull] != 2 || a.Rows["5"] != 1 || a.Rows["10"] != 1 {
		t.Errorf("a.pcap rows: expected full=2 5=1 10=1, got %v", a.Rows)
	}
	b := reports["b.pcap"]
	if b == nil || b.Rows[model.WindowFull] != 1 || b.Rows["5"] != 1 || b.Rows["10"] != 0 {
		t.Errorf("b.pcap rows: expected full=1 5=1 10=0, got %+v", b)
	}

	// 3. CSV layout: one file per (window, capture), none for empty pairs.
	checks := []struct {
		path     string
		dataRows int
		columns  int
	}{
		{filepath.Join(output, "full", "a.csv"), 2, 6 + len(model.FeatureColumns)},
		{filepath.Join(output, "full", "b.csv"), 1, 6 + len(model.FeatureColumns)},
		{filepath.Join(output, "5", "a.csv"), 1, 7 + len(model.FeatureColumns)},
		{filepath.Join(output, "5", "b.csv"), 1, 7 + len(model.FeatureColumns)},
		{filepath.Join(output, "10", "a.csv"), 1, 7 + len(model.FeatureColumns)},
	}
	for _, c := range checks {
		lines := readCSV(t, c.path)
		if len(lines) != c.dataRows+1 {
			t.Errorf("%s: expected %d data rows, got %d", c.path, c.dataRows, len(lines)-1)
		}
		for i, line := range lines {
			if len(line) != c.columns {
				t.Errorf("%s line %d: expected %d columns, got %d", c.path, i, c.columns, len(line))
			}
		}
	}
	if _, err := os.Stat(filepath.Join(output, "10", "b.csv")); !os.IsNotExist(err) {
		t.Errorf("Expected no window-10 output for b.pcap, stat err = %v", err)
	}
}

func TestExtractor_DecodeFailureIsolation(t *testing.T) {
	captures, output := tempDirs(t)
	writeCaptures(t, captures, "good.pcap", "torn.pcap")

	client := model.Endpoint{Addr: "192.168.1.10", Port: "50000"}
	server := model.Endpoint{Addr: "192.168.1.20", Port: "443"}
	decoder := &fakeDecoder{
		records: map[string][]model.PacketRecord{
			"good.pcap": flowRecords(client, server, 6, 10.0),
		},
		errs: map[string]error{
			"torn.pcap": errors.New("tshark exited with status 2: cut short in the middle of a packet"),
		},
	}

	csvSink, err := sink.NewCSVSink(output)
	if err != nil {
		t.Fatalf("Failed to create CSV sink: %v", err)
	}
	defer csvSink.Close()

	cfg := config.ExtractConfig{
		CaptureRoot:      captures,
		OutputRoot:       output,
		Windows:          []int{5},
		NumWorkers:       2,
		QueueCapacity:    4,
		MaxFlowsPerChunk: 16,
	}
	summary, err := New(cfg, decoder, []model.RowWriter{csvSink}, nil).Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.FilesOK != 1 || summary.FilesFailed != 1 {
		t.Fatalf("Expected 1 ok and 1 failed file, got ok=%d failed=%d", summary.FilesOK, summary.FilesFailed)
	}
	for _, r := range summary.Files {
		switch r.File {
		case "good.pcap":
			if r.Status != model.StatusOK || r.TotalRows() != 2 {
				t.Errorf("good.pcap: expected ok with 2 rows, got %+v", r)
			}
		case "torn.pcap":
			if r.Status != model.StatusDecodeFailed {
				t.Errorf("torn.pcap: expected decode_failed, got %s", r.Status)
			}
			if !strings.Contains(r.Reason, "status 2") {
				t.Errorf("torn.pcap: reason should carry the decoder error, got %q", r.Reason)
			}
			if r.Flows != 0 || r.TotalRows() != 0 {
				t.Errorf("torn.pcap: expected no flows or rows, got %+v", r)
			}
		default:
			t.Errorf("Unexpected report for %s", r.File)
		}
	}

	// The surviving file's output is complete and the torn one left nothing.
	lines := readCSV(t, filepath.Join(output, "full", "good.csv"))
	if len(lines) != 2 {
		t.Errorf("good.csv: expected header plus 1 row, got %d lines", len(lines))
	}
	if _, err := os.Stat(filepath.Join(output, "full", "torn.csv")); !os.IsNotExist(err) {
		t.Errorf("Expected no output for torn.pcap, stat err = %v", err)
	}
}

// failByCapture rejects rows for one capture and accepts everything else.
type failByCapture struct {
	capture string
	good    model.RowWriter
}

func (f *failByCapture) WriteRow(row *model.FeatureRow) error {
	if row.CaptureFile == f.capture {
		return fmt.Errorf("disk full writing %s", f.capture)
	}
	return f.good.WriteRow(row)
}

func (f *failByCapture) FinishFile(capture string) error { return f.good.FinishFile(capture) }

func (f *failByCapture) Close() error { return f.good.Close() }

func TestExtractor_WriteFailureQuarantine(t *testing.T) {
	captures, output := tempDirs(t)
	writeCaptures(t, captures, "first.pcap", "second.pcap")

	client := model.Endpoint{Addr: "10.1.0.1", Port: "40000"}
	server := model.Endpoint{Addr: "10.1.0.2", Port: "443"}
	decoder := &fakeDecoder{
		records: map[string][]model.PacketRecord{
			"first.pcap":  flowRecords(client, server, 6, 1.0),
			"second.pcap": flowRecords(client, server, 6, 2.0),
		},
	}

	csvSink, err := sink.NewCSVSink(output)
	if err != nil {
		t.Fatalf("Failed to create CSV sink: %v", err)
	}
	defer csvSink.Close()
	writer := &failByCapture{capture: "first.pcap", good: csvSink}

	cfg := config.ExtractConfig{
		CaptureRoot:      captures,
		OutputRoot:       output,
		Windows:          []int{5},
		NumWorkers:       1,
		QueueCapacity:    4,
		MaxFlowsPerChunk: 16,
	}
	summary, err := New(cfg, decoder, []model.RowWriter{writer}, nil).Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.FilesOK != 1 || summary.FilesFailed != 1 {
		t.Fatalf("Expected the failure to stay with one file, got ok=%d failed=%d",
			summary.FilesOK, summary.FilesFailed)
	}
	for _, r := range summary.Files {
		switch r.File {
		case "first.pcap":
			if r.Status != model.StatusWriteFailed || !strings.Contains(r.Reason, "disk full") {
				t.Errorf("first.pcap: expected write_failed with reason, got %+v", r)
			}
		case "second.pcap":
			if r.Status != model.StatusOK || r.TotalRows() != 2 {
				t.Errorf("second.pcap: expected ok with 2 rows, got %+v", r)
			}
		}
	}
	lines := readCSV(t, filepath.Join(output, "full", "second.csv"))
	if len(lines) != 2 {
		t.Errorf("second.csv: expected header plus 1 row, got %d lines", len(lines))
	}
}

func TestExtractor_TightQueueCorrectness(t *testing.T) {
	captures, output := tempDirs(t)
	writeCaptures(t, captures, "big.pcap")

	client := model.Endpoint{Addr: "172.16.0.1", Port: "60000"}
	server := model.Endpoint{Addr: "172.16.0.2", Port: "443"}
	decoder := &fakeDecoder{
		records: map[string][]model.PacketRecord{
			"big.pcap": flowRecords(client, server, 300, 0.0),
		},
	}

	csvSink, err := sink.NewCSVSink(output)
	if err != nil {
		t.Fatalf("Failed to create CSV sink: %v", err)
	}
	defer csvSink.Close()

	// Capacity 1 forces the producer to block on almost every record.
	cfg := config.ExtractConfig{
		CaptureRoot:      captures,
		OutputRoot:       output,
		Windows:          []int{5},
		NumWorkers:       1,
		QueueCapacity:    1,
		MaxFlowsPerChunk: 8,
	}
	summary, err := New(cfg, decoder, []model.RowWriter{csvSink}, nil).Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Flows != 1 || summary.Rows != 2 {
		t.Fatalf("Expected 1 flow and 2 rows, got flows=%d rows=%d", summary.Flows, summary.Rows)
	}

	lines := readCSV(t, filepath.Join(output, "full", "big.csv"))
	if len(lines) != 2 {
		t.Fatalf("big.csv: expected header plus 1 row, got %d lines", len(lines))
	}
	idx := -1
	for i, name := range lines[0] {
		if name == "total_packets" {
			idx = i
		}
	}
	if idx < 0 {
		t.Fatal("total_packets column missing from header")
	}
	total, err := strconv.ParseFloat(lines[1][idx], 64)
	if err != nil || total != 300 {
		t.Errorf("Expected all 300 packets to survive the tight queue, got %v (err %v)", total, err)
	}
}

func TestDecodeQueue_BoundedProducer(t *testing.T) {
	client := model.Endpoint{Addr: "10.9.0.1", Port: "1234"}
	server := model.Endpoint{Addr: "10.9.0.2", Port: "443"}
	decoder := &fakeDecoder{
		records: map[string][]model.PacketRecord{
			"stall.pcap": flowRecords(client, server, 100, 0.0),
		},
	}

	// Same queue shape the pipeline builds, but with the consumer held back.
	const capacity = 4
	queue := make(chan *model.PacketRecord, capacity)
	done := make(chan struct{})
	go func() {
		decoder.Decode("stall.pcap", queue)
		close(done)
	}()

	waitFor := func(want int64) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if atomic.LoadInt64(&decoder.sent) == want {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("Producer stuck at %d sent records, expected %d", atomic.LoadInt64(&decoder.sent), want)
	}

	// With nothing consumed the producer fills the buffer and stops.
	waitFor(capacity)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt64(&decoder.sent); got != capacity {
		t.Fatalf("Producer ran ahead of the queue bound: sent %d with capacity %d", got, capacity)
	}

	// Draining ten records frees exactly ten slots.
	for i := 0; i < 10; i++ {
		<-queue
	}
	waitFor(capacity + 10)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt64(&decoder.sent); got != capacity+10 {
		t.Fatalf("Producer overshot after partial drain: sent %d", got)
	}

	// Draining the rest lets the producer finish and close the channel.
	for range queue {
	}
	<-done
	if got := atomic.LoadInt64(&decoder.sent); got != 100 {
		t.Errorf("Expected 100 records total, got %d", got)
	}
}

func TestWriteSummary(t *testing.T) {
	_, output := tempDirs(t)

	summary := &model.RunSummary{
		CaptureRoot: "/data/captures",
		OutputRoot:  output,
		Windows:     []int{5, 10},
		StartedAt:   time.Now().Add(-time.Minute),
		FinishedAt:  time.Now(),
	}
	summary.Add(&model.FileReport{
		File:   "a.pcap",
		Status: model.StatusOK,
		Flows:  3,
		Rows:   map[string]int{model.WindowFull: 3, "5": 2},
	})
	summary.Add(&model.FileReport{
		File:   "b.pcap",
		Status: model.StatusDecodeFailed,
		Reason: "tshark exited with status 2",
	})

	path, err := WriteSummary(summary, filepath.Join(output, "nested"))
	if err != nil {
		t.Fatalf("WriteSummary failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read summary: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"files_total\": 2") {
		t.Errorf("Summary should be indented JSON, got:\n%s", data)
	}

	var decoded model.RunSummary
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Summary is not valid JSON: %v", err)
	}
	if decoded.FilesTotal != 2 || decoded.FilesOK != 1 || decoded.FilesFailed != 1 {
		t.Errorf("Round-tripped totals wrong: %+v", decoded)
	}
	if decoded.Flows != 3 || decoded.Rows != 5 {
		t.Errorf("Expected 3 flows and 5 rows, got flows=%d rows=%d", decoded.Flows, decoded.Rows)
	}
	if len(decoded.Files) != 2 || decoded.Files[1].Reason == "" {
		t.Errorf("Per-file reports should survive the round trip: %+v", decoded.Files)
	}
}
