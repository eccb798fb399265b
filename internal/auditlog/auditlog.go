// Package auditlog writes the append-only diagnostic trail of each analysis
// request: the question, the classified intent, the synthesized filter and
// the row counts at every stage. The file is write-only, nothing in the
// pipeline ever reads it back, so interleaved lines from concurrent
// requests are tolerated.
package auditlog

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Logger appends diagnostic records to a flat file. A nil *Logger is valid
// and discards everything.
type Logger struct {
	f *os.File
}

// Open opens (or creates) the audit log at path for appending.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Logger{f: f}, nil
}

// Record appends one timestamped stage record with key=value pairs.
func (l *Logger) Record(stage string, kv ...any) {
	if l == nil || l.f == nil {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(stage)
	b.WriteString("]")
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%q", kv[i], fmt.Sprint(kv[i+1]))
	}
	b.WriteByte('\n')

	// Best effort: a failed diagnostic write must never fail the request.
	l.f.WriteString(b.String())
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Close()
}
