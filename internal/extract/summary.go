package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"QuicSieve/internal/model"
)

// WriteSummary stores the run summary as indented JSON under the output root
// and returns the path it was written to.
func WriteSummary(summary *model.RunSummary, outputRoot string) (string, error) {
	if err := os.MkdirAll(outputRoot, 0755); err != nil {
		return "", fmt.Errorf("failed to create output root: %w", err)
	}
	path := filepath.Join(outputRoot, "summary.json")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}
	return path, nil
}
