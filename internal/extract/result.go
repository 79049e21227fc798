package extract

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// Result is the per-sequence output file. Only the representations the
// run asked for are present; the layer-keyed maps use resolved indices.
type Result struct {
	Label               string              `json:"label"`
	Representations     map[int][][]float32 `json:"representations,omitempty"`
	MeanRepresentations map[int][]float32   `json:"mean_representations,omitempty"`
	BosRepresentations  map[int][]float32   `json:"bos_representations,omitempty"`
	Contacts            [][]float32         `json:"contacts,omitempty"`
}

// WriteFile serializes the result to path, creating parent directories
// as needed. An existing file is overwritten.
func (r *Result) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding result for %q: %w", r.Label, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}

// ReadFile loads a result file written by WriteFile.
func ReadFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &r, nil
}
