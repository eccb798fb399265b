package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maargasystems/timesheet-ai/internal/ai"
	"github.com/maargasystems/timesheet-ai/internal/auditlog"
	"github.com/maargasystems/timesheet-ai/internal/timesheet"
)

// Pipeline runs one question end-to-end: snapshot → classify → filter →
// route → execute. Each request captures a single snapshot at entry; a
// concurrent refresh never affects a request already in flight.
type Pipeline struct {
	store       *timesheet.Store
	classifier  *Classifier
	synthesizer *Synthesizer
	router      *Router
	engine      *Engine
	audit       *auditlog.Logger
	logger      *slog.Logger
	// reportDir, when set, receives a copy of every generated report.
	reportDir string
}

// Options tune the pipeline; zero values fall back to defaults.
type Options struct {
	ChunkSize   int
	PreviewRows int
	// ReportDir receives timesheet_report_<timestamp>.html copies; ""
	// disables saving.
	ReportDir string
}

// NewPipeline wires the analysis stages over one provider and snapshot
// store. audit may be nil.
func NewPipeline(store *timesheet.Store, provider ai.Provider, audit *auditlog.Logger, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		store:       store,
		classifier:  NewClassifier(provider, logger),
		synthesizer: NewSynthesizer(provider, opts.ChunkSize, opts.PreviewRows, logger),
		router:      &Router{ChunkSize: opts.ChunkSize},
		engine:      NewEngine(provider, logger),
		audit:       audit,
		logger:      logger,
		reportDir:   opts.ReportDir,
	}
}

// Analyze answers one question against the current snapshot and returns the
// report. Error taxonomy:
//   - timesheet.ErrNoData: no snapshot, or the snapshot is empty
//   - *NoMatchRowsError: the question names a subject with no rows
//   - anything else: generic analysis failure for the caller to mask
//
// Classification and filter-synthesis failures degrade (general analysis,
// unfiltered table) rather than failing the request.
func (p *Pipeline) Analyze(ctx context.Context, question string) (string, error) {
	snap := p.store.Current()
	if snap == nil || snap.Table.Len() == 0 {
		return "", timesheet.ErrNoData
	}
	p.audit.Record("question", "text", question, "snapshot_version", snap.Version, "rows", snap.Table.Len())

	intent, err := p.classifier.Classify(ctx, question)
	if err != nil {
		if !errors.Is(err, ErrIntentParse) {
			return "", fmt.Errorf("classifying question: %w", err)
		}
		p.logger.Warn("intent classification failed, falling back to general analysis", "error", err)
		intent = GeneralIntent()
	}
	p.audit.Record("intent",
		"category", intent.Category,
		"subject", intent.Subject,
		"granularity", intent.Granularity,
	)

	table := p.filter(ctx, snap.Table, question)

	// Tie-break: the classifier's intent is authoritative. When a bad
	// filter empties the table but the intent names a subject, route
	// against the snapshot again so the filter cannot mask real data.
	// The row cap still applies on this path.
	if table.Len() == 0 && intent.Subject != "" {
		p.logger.Warn("filter removed every row, routing against full snapshot", "subject", intent.Subject)
		table = snap.Table.Head(MaxFilteredRows)
	}

	jobs, err := p.router.Route(intent, table)
	if err != nil {
		return "", err
	}
	batch := BuildBatch(jobs)
	p.audit.Record("route", "jobs", len(batch), "kind", jobs[0].Kind, "slice_rows", jobs[0].Slice.Len())

	report, err := p.engine.Execute(ctx, batch)
	if err != nil {
		return "", fmt.Errorf("executing analysis batch: %w", err)
	}

	p.saveReport(report)
	return report, nil
}

// filter synthesizes and applies the dynamic row filter, degrading to the
// unfiltered table when synthesis fails.
func (p *Pipeline) filter(ctx context.Context, t *timesheet.Table, question string) *timesheet.Table {
	pred, err := p.synthesizer.Synthesize(ctx, t, question)
	if err != nil {
		p.logger.Warn("filter synthesis failed, using unfiltered table", "error", err)
		p.audit.Record("filter", "error", err.Error())
		return t.Head(MaxFilteredRows)
	}

	filtered := Apply(t, pred, p.logger)

	rawJSON, _ := json.Marshal(pred)
	p.audit.Record("filter", "predicate", string(rawJSON), "rows_in", t.Len(), "rows_out", filtered.Len())
	return filtered
}

// saveReport writes a copy of the report for later inspection, mirroring
// the report files the service has always produced.
func (p *Pipeline) saveReport(report string) {
	if p.reportDir == "" {
		return
	}
	name := fmt.Sprintf("timesheet_report_%s.html", time.Now().Format("20060102_150405"))
	path := filepath.Join(p.reportDir, name)
	if err := os.WriteFile(path, []byte(report), 0644); err != nil {
		p.logger.Warn("failed to save report copy", "path", path, "error", err)
		return
	}
	p.logger.Info("report saved", "path", path)
}
