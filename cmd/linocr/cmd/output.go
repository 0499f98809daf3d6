package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/MeKo-Tech/linocr/internal/pipeline"
)

// FileLines holds the lines recognised in one file.
type FileLines struct {
	File  string                `json:"file"`
	Lines []pipeline.LineResult `json:"lines"`
}

// FileDetections holds the regions detected in one file.
type FileDetections struct {
	File string `json:"file"`
	pipeline.DetectionResult
}

func marshalJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(b) + "\n", nil
}

// writeOutput writes s to path, or to w when path is empty.
func writeOutput(w io.Writer, path, s string) error {
	if path == "" {
		_, err := io.WriteString(w, s)
		return err
	}
	if err := os.WriteFile(path, []byte(s), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
