package model

// RowWriter defines a generic interface for persisting feature rows.
// Implementations must accept concurrent WriteRow calls.
type RowWriter interface {
	// WriteRow appends one feature row to the destination that belongs to
	// its capture file and window category.
	WriteRow(row *FeatureRow) error

	// FinishFile flushes and releases everything held for one capture file.
	// It is called once per file, after all of the file's rows have been
	// written.
	FinishFile(capture string) error

	// Close releases any remaining resources.
	Close() error
}
