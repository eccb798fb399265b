package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maargasystems/timesheet-ai/internal/timesheet"
)

func newTestStore(t *testing.T, tbl *timesheet.Table) *timesheet.Store {
	t.Helper()
	store := timesheet.NewStore(nil)
	store.Swap(tbl)
	return store
}

func TestAnalyzeProjectQuestionEndToEnd(t *testing.T) {
	store := newTestStore(t, testTable())
	provider := &scriptedProvider{replies: []string{
		// classify
		`{"category": "Project Analysis", "subject_name": "Apollo CRM", "time_granularity": ""}`,
		// filter
		`{"filter": {"op": "contains", "column": "ProjectName", "value": "Apollo"}}`,
		// project analysis
		"Apollo CRM consumed 4.5 hours.",
		// report
		"<html>final report</html>",
	}}
	p := NewPipeline(store, provider, nil, nil, Options{})

	report, err := p.Analyze(context.Background(), "How is Apollo CRM doing?")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if report != "<html>final report</html>" {
		t.Errorf("Analyze() = %q, want the report job's output", report)
	}
	if len(provider.requests) != 4 {
		t.Errorf("provider saw %d calls, want 4 (classify, filter, analyze, report)", len(provider.requests))
	}
}

func TestAnalyzeNoSnapshot(t *testing.T) {
	store := timesheet.NewStore(nil)
	p := NewPipeline(store, &scriptedProvider{}, nil, nil, Options{})

	if _, err := p.Analyze(context.Background(), "anything"); !errors.Is(err, timesheet.ErrNoData) {
		t.Errorf("Analyze() error = %v, want ErrNoData", err)
	}
}

func TestAnalyzeEmptySnapshot(t *testing.T) {
	store := newTestStore(t, &timesheet.Table{Columns: []string{"Title"}})
	p := NewPipeline(store, &scriptedProvider{}, nil, nil, Options{})

	if _, err := p.Analyze(context.Background(), "anything"); !errors.Is(err, timesheet.ErrNoData) {
		t.Errorf("Analyze() error = %v, want ErrNoData", err)
	}
}

func TestAnalyzeUnknownSubjectSurfacesNoMatch(t *testing.T) {
	store := newTestStore(t, testTable())
	provider := &scriptedProvider{replies: []string{
		`{"category": "Project Analysis", "subject_name": "Poseidon", "time_granularity": ""}`,
		`{"filter": null}`,
	}}
	p := NewPipeline(store, provider, nil, nil, Options{})

	_, err := p.Analyze(context.Background(), "Tell me about project Poseidon")
	var noMatch *NoMatchRowsError
	if !errors.As(err, &noMatch) {
		t.Fatalf("Analyze() error = %v, want NoMatchRowsError", err)
	}
	if noMatch.Subject != "Poseidon" {
		t.Errorf("NoMatchRowsError.Subject = %q, want Poseidon", noMatch.Subject)
	}
}

func TestAnalyzeDegradesToGeneralOnBadClassification(t *testing.T) {
	store := newTestStore(t, testTable())
	provider := &scriptedProvider{replies: []string{
		"no JSON to be found here",
		`{"filter": null}`,
		"general analysis output",
		"report",
	}}
	p := NewPipeline(store, provider, nil, nil, Options{})

	report, err := p.Analyze(context.Background(), "something vague")
	if err != nil {
		t.Fatalf("Analyze() error = %v, want degrade to general analysis", err)
	}
	if report != "report" {
		t.Errorf("Analyze() = %q, want report output", report)
	}
}

func TestAnalyzeDegradesToUnfilteredOnBadFilter(t *testing.T) {
	store := newTestStore(t, testTable())
	provider := &scriptedProvider{replies: []string{
		`{"category": "General Analysis", "subject_name": "", "time_granularity": ""}`,
		"the filter call returned prose instead of JSON",
		"general analysis output",
		"report",
	}}
	p := NewPipeline(store, provider, nil, nil, Options{})

	if _, err := p.Analyze(context.Background(), "overview please"); err != nil {
		t.Fatalf("Analyze() error = %v, want degrade to unfiltered table", err)
	}
	// The analysis prompt must still carry table data.
	analysisPrompt := provider.requests[2].Prompt
	if !strings.Contains(analysisPrompt, "Alice") {
		t.Errorf("analysis prompt lost the table data after filter degrade:\n%s", analysisPrompt)
	}
}

func TestAnalyzeIntentWinsOverEmptyingFilter(t *testing.T) {
	store := newTestStore(t, testTable())
	provider := &scriptedProvider{replies: []string{
		// classify names Alice
		`{"category": "Employee Analysis", "subject_name": "Alice", "time_granularity": ""}`,
		// the filter contradicts the intent and matches nothing
		`{"filter": {"op": "eq", "column": "EmployeeName", "value": "Nobody"}}`,
		"employee analysis output",
		"report",
	}}
	p := NewPipeline(store, provider, nil, nil, Options{})

	report, err := p.Analyze(context.Background(), "How many hours did Alice log?")
	if err != nil {
		t.Fatalf("Analyze() error = %v, want intent-driven re-route", err)
	}
	if report != "report" {
		t.Errorf("Analyze() = %q, want report output", report)
	}
	// The employee job must run over Alice's rows from the full snapshot.
	analysisPrompt := provider.requests[2].Prompt
	if !strings.Contains(analysisPrompt, "Alice") {
		t.Errorf("analysis prompt missing Alice's rows after tie-break:\n%s", analysisPrompt)
	}
}

func TestAnalyzeTieBreakHonorsRowCap(t *testing.T) {
	items := make([]map[string]any, MaxFilteredRows+5)
	for i := range items {
		items[i] = map[string]any{"EmployeeName": "Alice", "Marker": fmt.Sprintf("row-%d", i)}
	}
	items[len(items)-1]["Marker"] = "overflow-marker"

	store := newTestStore(t, timesheet.New([]string{"EmployeeName", "Marker"}, items))
	provider := &scriptedProvider{replies: []string{
		`{"category": "Employee Analysis", "subject_name": "Alice", "time_granularity": ""}`,
		// The filter matches nothing, triggering the re-route.
		`{"filter": {"op": "eq", "column": "EmployeeName", "value": "Nobody"}}`,
		"employee analysis output",
		"report",
	}}
	p := NewPipeline(store, provider, nil, nil, Options{ChunkSize: 1 << 20})

	if _, err := p.Analyze(context.Background(), "hours for Alice"); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	// Rows past the cap must not reach any prompt, even after the re-route.
	for i, req := range provider.requests {
		if strings.Contains(req.Prompt, "overflow-marker") {
			t.Errorf("request %d prompt carries rows beyond the cap", i)
		}
	}
}

func TestAnalyzeAbortsWhenEngineFails(t *testing.T) {
	store := newTestStore(t, testTable())
	provider := &scriptedProvider{
		replies: []string{
			`{"category": "General Analysis", "subject_name": "", "time_granularity": ""}`,
			`{"filter": null}`,
			"",
		},
		errs: []error{nil, nil, errors.New("provider down")},
	}
	p := NewPipeline(store, provider, nil, nil, Options{})

	if _, err := p.Analyze(context.Background(), "overview"); err == nil {
		t.Fatal("Analyze() = nil error, want engine failure to abort the request")
	}
}

func TestAnalyzeSavesReportCopy(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, testTable())
	provider := &scriptedProvider{replies: []string{
		`{"category": "General Analysis", "subject_name": "", "time_granularity": ""}`,
		`{"filter": null}`,
		"analysis",
		"<html>saved report</html>",
	}}
	p := NewPipeline(store, provider, nil, nil, Options{ReportDir: dir})

	if _, err := p.Analyze(context.Background(), "overview"); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading report dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("report dir has %d files, want 1", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "timesheet_report_") {
		t.Errorf("report file name = %q, want timesheet_report_ prefix", entries[0].Name())
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("reading report file: %v", err)
	}
	if string(data) != "<html>saved report</html>" {
		t.Errorf("saved report = %q, want the engine output", data)
	}
}
