package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pfrederiksen/canyon-gpx/internal/converter"
)

// WriteResult writes the GPX document to w when output is "-", otherwise to
// the named file (the result's suggested file name when output is empty). It
// returns the path written, or "" for w.
func WriteResult(w io.Writer, result *converter.Result, output string) (string, error) {
	if output == "-" {
		_, err := w.Write(result.GPX)
		return "", err
	}

	path := output
	if path == "" {
		path = result.Filename
	}
	if err := os.WriteFile(path, result.GPX, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// WriteMetrics prints a metrics snapshot as indented JSON
func WriteMetrics(w io.Writer, snapshot map[string]float64) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snapshot)
}
