package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/linkforensics/internal/model"
)

// JSONWriter outputs reports in JSON format.
// Records are written exactly as stored so the output can be fed back to
// other tools.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the record in JSON format.
func (w *JSONWriter) Write(record *model.ForensicRecord) (int, error) {
	return w.writeJSON(record)
}

// WriteHistory outputs the history in JSON format.
func (w *JSONWriter) WriteHistory(history *model.History) (int, error) {
	return w.writeJSON(history)
}

// WriteComparison outputs the comparison in JSON format.
func (w *JSONWriter) WriteComparison(cmp *model.Comparison) (int, error) {
	return w.writeJSON(comparisonJSON{Comparison: cmp, SameDevice: cmp.SameDevice()})
}

type comparisonJSON struct {
	*model.Comparison
	SameDevice bool `json:"sameDevice"`
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// JSONReport is a record wrapped with the tool version and its summary.
type JSONReport struct {
	// Version is the linkforensics version that generated this report.
	Version string `json:"version"`

	// Record is the stored record.
	Record *model.ForensicRecord `json:"record"`

	// Summary carries the findings and warnings derived from the record.
	Summary *model.Summary `json:"summary"`
}

// FullJSONWriter outputs records with a metadata wrapper.
type FullJSONWriter struct {
	*JSONWriter

	// version is the linkforensics version string.
	version string
}

// NewFullJSONWriter creates a writer for complete reports with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the record wrapped with metadata.
func (w *FullJSONWriter) Write(record *model.ForensicRecord) (int, error) {
	return w.writeJSON(&JSONReport{
		Version: w.version,
		Record:  record,
		Summary: w.summary(record),
	})
}
