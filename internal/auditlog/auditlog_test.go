package auditlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecordAppendsStagedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	l.Record("question", "text", "how is Apollo doing", "rows", 42)
	l.Record("intent", "category", "ProjectAnalysis")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("audit log has %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "[question]") || !strings.Contains(lines[0], `text="how is Apollo doing"`) {
		t.Errorf("first line = %q, want stage and quoted pairs", lines[0])
	}
	if !strings.Contains(lines[1], "[intent]") || !strings.Contains(lines[1], `category="ProjectAnalysis"`) {
		t.Errorf("second line = %q, want intent record", lines[1])
	}
}

func TestRecordAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	for i := 0; i < 2; i++ {
		l, err := Open(path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		l.Record("question", "n", i)
		l.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "[question]"); got != 2 {
		t.Errorf("audit log has %d records, want 2 appended across opens", got)
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	l.Record("question", "text", "ignored")
	if err := l.Close(); err != nil {
		t.Errorf("Close() on nil logger = %v, want nil", err)
	}
}
