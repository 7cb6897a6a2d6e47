package model

import "time"

// Status values for FileReport.
const (
	StatusOK           = "ok"
	StatusDecodeFailed = "decode_failed"
	StatusWriteFailed  = "write_failed"
)

// FileReport records the outcome of one capture file.
type FileReport struct {
	File             string         `json:"file"`
	Status           string         `json:"status"`
	Reason           string         `json:"reason,omitempty"`
	Flows            int            `json:"flows"`
	Rows             map[string]int `json:"rows"`
	MalformedRecords int            `json:"malformed_records"`
	SkippedLines     int            `json:"skipped_lines"`
	ElapsedSeconds   float64        `json:"elapsed_seconds"`
}

// TotalRows sums the report's per-window row counts.
func (r *FileReport) TotalRows() int {
	total := 0
	for _, n := range r.Rows {
		total += n
	}
	return total
}

// RunSummary aggregates one whole extraction run. It is written to
// summary.json under the output root and published as the final run event.
type RunSummary struct {
	CaptureRoot      string        `json:"capture_root"`
	OutputRoot       string        `json:"output_root"`
	Windows          []int         `json:"windows"`
	FilesTotal       int           `json:"files_total"`
	FilesOK          int           `json:"files_ok"`
	FilesFailed      int           `json:"files_failed"`
	Flows            int           `json:"flows"`
	Rows             int           `json:"rows"`
	MalformedRecords int           `json:"malformed_records"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Files            []*FileReport `json:"files"`
}

// Add folds one file report into the run totals.
func (s *RunSummary) Add(report *FileReport) {
	s.FilesTotal++
	if report.Status == StatusOK {
		s.FilesOK++
	} else {
		s.FilesFailed++
	}
	s.Flows += report.Flows
	s.Rows += report.TotalRows()
	s.MalformedRecords += report.MalformedRecords
	s.Files = append(s.Files, report)
}
