package reporter

import (
	"context"
	"encoding/json"
	"io"
)

// PreflightJSONReporter writes preflight results as JSON.
type PreflightJSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewPreflightJSONReporter creates a JSON reporter for preflight results.
func NewPreflightJSONReporter(w io.Writer, pretty bool) *PreflightJSONReporter {
	return &PreflightJSONReporter{writer: w, pretty: pretty}
}

// GeneratePreflight emits the preflight result as JSON.
func (r *PreflightJSONReporter) GeneratePreflight(ctx context.Context, result *PreflightResult) error {
	var (
		data []byte
		err  error
	)

	if r.pretty {
		data, err = json.MarshalIndent(result, "", "  ")
	} else {
		data, err = json.Marshal(result)
	}
	if err != nil {
		return err
	}
	if _, err := r.writer.Write(data); err != nil {
		return err
	}
	_, err = r.writer.Write([]byte("\n"))
	return err
}
