package analysis

import (
	"fmt"
	"strings"

	"github.com/maargasystems/timesheet-ai/internal/ai"
	"github.com/maargasystems/timesheet-ai/internal/timesheet"
)

// Column names the router keys specific analyses on.
const (
	projectColumn  = "ProjectName"
	employeeColumn = "EmployeeName"
)

// JobKind names the analysis template behind a job.
type JobKind string

const (
	JobProject  JobKind = "project"
	JobEmployee JobKind = "employee"
	JobGeneral  JobKind = "general"
	JobReport   JobKind = "report"
)

// Job is one unit of work for the execution engine: an analysis template
// bound to a prompt and the row slice it describes. The slice is always a
// subset of the single snapshot the request captured.
type Job struct {
	Kind    JobKind
	Subject string
	Slice   *timesheet.Table
	System  string
	Prompt  string
}

// NoMatchRowsError reports that a subject named by the question has no rows
// in the table.
type NoMatchRowsError struct {
	Subject string
}

func (e *NoMatchRowsError) Error() string {
	return fmt.Sprintf("no timesheet data found for %q", e.Subject)
}

// Router selects and instantiates analysis templates for a classified
// question. Routing is a pure function of (intent, table).
type Router struct {
	// ChunkSize bounds the serialized data embedded in any single job's
	// prompt; non-positive means DefaultChunkSize.
	ChunkSize int
}

// Route builds the ordered analysis jobs for intent over table. Oversized
// data fans out into one job per chunk. The terminal report job is NOT
// included; BuildBatch appends it.
func (r *Router) Route(intent Intent, t *timesheet.Table) ([]Job, error) {
	switch {
	case intent.Category == CategoryProject && intent.Subject != "" && t.HasColumn(projectColumn):
		slice := subjectFilter(t, projectColumn, intent.Subject)
		if slice.Len() == 0 {
			return nil, &NoMatchRowsError{Subject: intent.Subject}
		}
		return r.fanOut(JobProject, intent.Subject, slice, func(chunk string) string {
			return ai.BuildProjectAnalysisPrompt(intent.Subject, chunk)
		}), nil

	case intent.Category == CategoryEmployee && intent.Subject != "" && t.HasColumn(employeeColumn):
		slice := subjectFilter(t, employeeColumn, intent.Subject)
		if slice.Len() == 0 {
			return nil, &NoMatchRowsError{Subject: intent.Subject}
		}
		return r.fanOut(JobEmployee, intent.Subject, slice, func(chunk string) string {
			return ai.BuildEmployeeAnalysisPrompt(intent.Subject, chunk)
		}), nil

	default:
		// Time and general analysis (and any intent the table's schema
		// cannot serve) run over the full, already-filtered table.
		return r.fanOut(JobGeneral, "", t, ai.BuildGeneralAnalysisPrompt), nil
	}
}

// subjectFilter keeps rows whose column contains subject, case-insensitive.
func subjectFilter(t *timesheet.Table, column, subject string) *timesheet.Table {
	needle := strings.ToLower(subject)
	return t.Filter(func(row timesheet.Row) bool {
		return strings.Contains(strings.ToLower(row.String(column)), needle)
	}, 0)
}

// fanOut chunks the slice's text rendering and emits one job per chunk, all
// sharing the same row slice.
func (r *Router) fanOut(kind JobKind, subject string, slice *timesheet.Table, prompt func(chunk string) string) []Job {
	var jobs []Job
	for _, chunk := range Chunk(slice.Text(), r.ChunkSize) {
		jobs = append(jobs, Job{
			Kind:    kind,
			Subject: subject,
			Slice:   slice,
			System:  ai.AnalystSystem,
			Prompt:  prompt(chunk),
		})
	}
	return jobs
}

// BuildBatch orders the batch for the strictly sequential execution engine:
// every analysis job first, then exactly one terminal compose-report job.
func BuildBatch(jobs []Job) []Job {
	batch := make([]Job, len(jobs), len(jobs)+1)
	copy(batch, jobs)
	return append(batch, Job{
		Kind:   JobReport,
		System: ai.ReportSystem,
		// The engine fills the report prompt in from the outputs of the
		// jobs that ran before it.
	})
}
