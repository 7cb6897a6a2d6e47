// Package sink persists feature rows.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"QuicSieve/internal/model"
)

// destination is one open CSV file plus the lock that keeps concurrent row
// appends from interleaving.
type destination struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	err    error // open failure, repeated to every later write
}

func (d *destination) write(record []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	return d.writer.Write(record)
}

func (d *destination) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	d.writer.Flush()
	err := d.writer.Error()
	if cerr := d.file.Close(); err == nil {
		err = cerr
	}
	d.file = nil
	return err
}

// CSVSink writes feature rows under a root directory, one subdirectory per
// window category and one file per capture file. It implements
// model.RowWriter and is safe for concurrent use: a registry lock guards the
// destination map, each destination has its own lock held only for a single
// append.
type CSVSink struct {
	root string

	mu    sync.Mutex
	dests map[string]*destination
}

// NewCSVSink creates the sink rooted at dir.
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output root: %w", err)
	}
	return &CSVSink{root: dir, dests: make(map[string]*destination)}, nil
}

// WriteRow appends one row to the file for its capture and window category.
// A destination that failed to open keeps returning the same error, so the
// failure surfaces once per row batch without stopping other files.
func (s *CSVSink) WriteRow(row *model.FeatureRow) error {
	return s.destination(row).write(row.Record())
}

// destination returns the open file for the row's capture and window,
// creating it with its header on first use.
func (s *CSVSink) destination(row *model.FeatureRow) *destination {
	key := row.Window + "/" + row.CaptureFile
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.dests[key]; ok {
		return d
	}

	d := &destination{}
	dir := filepath.Join(s.root, row.Window)
	if err := os.MkdirAll(dir, 0755); err != nil {
		d.err = fmt.Errorf("failed to create window directory %s: %w", dir, err)
	} else {
		path := filepath.Join(dir, csvName(row.CaptureFile))
		file, err := os.Create(path)
		if err != nil {
			d.err = fmt.Errorf("failed to create %s: %w", path, err)
		} else {
			d.file = file
			d.writer = csv.NewWriter(file)
			if err := d.writer.Write(row.Header()); err != nil {
				d.err = fmt.Errorf("failed to write header to %s: %w", path, err)
			}
		}
	}
	s.dests[key] = d
	return d
}

// csvName maps a capture file name to its output file name.
func csvName(capture string) string {
	return strings.TrimSuffix(capture, filepath.Ext(capture)) + ".csv"
}

// FinishFile flushes and closes every destination belonging to one capture
// file, making its rows durable before the next file starts.
func (s *CSVSink) FinishFile(capture string) error {
	s.mu.Lock()
	var done []*destination
	for key, d := range s.dests {
		if strings.HasSuffix(key, "/"+capture) {
			done = append(done, d)
			delete(s.dests, key)
		}
	}
	s.mu.Unlock()

	var firstErr error
	for _, d := range done {
		if err := d.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close flushes and closes anything still open.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	remaining := make([]*destination, 0, len(s.dests))
	for _, d := range s.dests {
		remaining = append(remaining, d)
	}
	s.dests = make(map[string]*destination)
	s.mu.Unlock()

	var firstErr error
	for _, d := range remaining {
		if err := d.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
