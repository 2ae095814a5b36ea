package report

import (
	"io"
	"time"

	"github.com/nao1215/linkforensics/internal/model"
)

// Writer defines the interface for report output.
// Implementations write forensic data in various formats.
type Writer interface {
	// Write outputs a single record.
	// Returns the number of bytes written and any error encountered.
	Write(record *model.ForensicRecord) (int, error)

	// WriteHistory outputs the records of a resource or link.
	WriteHistory(history *model.History) (int, error)

	// WriteComparison outputs the comparison of two records.
	WriteComparison(cmp *model.Comparison) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the record to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(record *model.ForensicRecord) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.Write(record) })
}

// WriteHistory outputs the history to all configured Writers.
func (m *MultiWriter) WriteHistory(history *model.History) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteHistory(history) })
}

// WriteComparison outputs the comparison to all configured Writers.
func (m *MultiWriter) WriteComparison(cmp *model.Comparison) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteComparison(cmp) })
}

func (m *MultiWriter) each(fn func(Writer) (int, error)) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := fn(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer

	// now evaluates sessions that have not ended yet.
	now func() time.Time
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output, now: time.Now}
}

func (b baseWriter) summary(record *model.ForensicRecord) *model.Summary {
	return model.NewSummary(record, b.now())
}

// timeLayout is used for every timestamp in text reports.
const timeLayout = "2006-01-02 15:04:05 MST"

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
