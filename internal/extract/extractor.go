package extract

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"QuicSieve/internal/assemble"
	"QuicSieve/internal/config"
	"QuicSieve/internal/feature"
	"QuicSieve/internal/model"
)

// Extractor runs the capture-to-feature pipeline: files are processed one
// after another, while inside each file a producer goroutine decodes records
// into a bounded queue and a worker pool turns the assembled flows into
// feature rows.
type Extractor struct {
	cfg       config.ExtractConfig
	decoder   model.Decoder
	writers   []model.RowWriter
	publisher model.EventPublisher

	flowsDone int64
}

// New assembles the pipeline from its parts. The publisher may be nil, in
// which case no events are emitted.
func New(cfg config.ExtractConfig, decoder model.Decoder, writers []model.RowWriter, publisher model.EventPublisher) *Extractor {
	return &Extractor{
		cfg:       cfg,
		decoder:   decoder,
		writers:   writers,
		publisher: publisher,
	}
}

// Run processes every capture under the configured root and returns the run
// summary. Per-file failures are recorded in the summary and never abort the
// run; Run itself fails only when no work can be started at all.
func (e *Extractor) Run() (*model.RunSummary, error) {
	files, err := Discover(e.cfg.CaptureRoot)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no capture files found under %s", e.cfg.CaptureRoot)
	}
	log.Printf("Found %d capture files under %s", len(files), e.cfg.CaptureRoot)

	summary := &model.RunSummary{
		CaptureRoot: e.cfg.CaptureRoot,
		OutputRoot:  e.cfg.OutputRoot,
		Windows:     e.cfg.Windows,
		StartedAt:   time.Now(),
	}
	for i, path := range files {
		report := e.processFile(path)
		summary.Add(report)
		log.Printf("[%d/%d] %s: %s (%d flows, %d rows, %.2fs)",
			i+1, len(files), report.File, report.Status, report.Flows, report.TotalRows(), report.ElapsedSeconds)
		e.publish("file", report)
	}
	summary.FinishedAt = time.Now()
	e.publish("run", summary)
	return summary, nil
}

// processFile drives one capture through decode, assembly and feature
// extraction. Whatever goes wrong stays inside the returned report.
func (e *Extractor) processFile(path string) *model.FileReport {
	capture := filepath.Base(path)
	report := &model.FileReport{File: capture, Rows: make(map[string]int)}
	start := time.Now()
	defer func() { report.ElapsedSeconds = time.Since(start).Seconds() }()

	// 1. Producer feeds the bounded queue while the assembler drains it.
	queue := make(chan *model.PacketRecord, e.cfg.QueueCapacity)
	type decodeResult struct {
		skipped int
		err     error
	}
	done := make(chan decodeResult, 1)
	go func() {
		skipped, err := e.decoder.Decode(path, queue)
		done <- decodeResult{skipped, err}
	}()
	table := assemble.Assemble(queue)
	res := <-done
	report.SkippedLines = res.skipped
	report.MalformedRecords = table.Malformed()
	if res.err != nil {
		// A partially decoded capture yields no rows at all.
		report.Status = model.StatusDecodeFailed
		report.Reason = res.err.Error()
		return report
	}
	report.Flows = table.Len()

	// 2. Cut the flow list into chunks and fan them out to the workers.
	var mu sync.Mutex
	var firstErr error
	noteErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	chunks := make(chan []*model.Flow)
	var wg sync.WaitGroup
	wg.Add(e.cfg.NumWorkers)
	for i := 0; i < e.cfg.NumWorkers; i++ {
		go func() {
			defer wg.Done()
			counts := make(map[string]int)
			for chunk := range chunks {
				for _, flow := range chunk {
					for _, row := range feature.Rows(capture, flow, e.cfg.Windows) {
						if err := e.writeRow(row); err != nil {
							noteErr(err)
							continue
						}
						counts[row.Window]++
					}
					if n := atomic.AddInt64(&e.flowsDone, 1); n%1000 == 0 {
						log.Printf("Processed %d flows...", n)
					}
				}
			}
			mu.Lock()
			for window, n := range counts {
				report.Rows[window] += n
			}
			mu.Unlock()
		}()
	}
	for _, chunk := range chunkFlows(table.Flows(), e.cfg.MaxFlowsPerChunk) {
		chunks <- chunk
	}
	close(chunks)
	wg.Wait()

	// 3. Flush this file's output before moving on.
	for _, w := range e.writers {
		if err := w.FinishFile(capture); err != nil {
			noteErr(fmt.Errorf("failed to finish output for %s: %w", capture, err))
		}
	}
	if firstErr != nil {
		report.Status = model.StatusWriteFailed
		report.Reason = firstErr.Error()
		log.Printf("Output failed for %s: %v", capture, firstErr)
		return report
	}
	report.Status = model.StatusOK
	return report
}

// writeRow hands one row to every configured writer.
func (e *Extractor) writeRow(row *model.FeatureRow) error {
	for _, w := range e.writers {
		if err := w.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extractor) publish(suffix string, event interface{}) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(suffix, event); err != nil {
		log.Printf("Failed to publish %s event: %v", suffix, err)
	}
}

// chunkFlows splits flows into slices of at most size entries so a single
// long task cannot pin a worker for the whole file.
func chunkFlows(flows []*model.Flow, size int) [][]*model.Flow {
	if len(flows) == 0 {
		return nil
	}
	chunks := make([][]*model.Flow, 0, (len(flows)+size-1)/size)
	for start := 0; start < len(flows); start += size {
		end := start + size
		if end > len(flows) {
			end = len(flows)
		}
		chunks = append(chunks, flows[start:end])
	}
	return chunks
}
