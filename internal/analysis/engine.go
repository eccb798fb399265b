package analysis

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/maargasystems/timesheet-ai/internal/ai"
)

// Engine executes a job batch against the generative service, strictly in
// order, one at a time. Later jobs may depend on earlier jobs' outputs; the
// terminal report job receives all of them.
type Engine struct {
	provider ai.Provider
	logger   *slog.Logger
}

// NewEngine creates an Engine on top of the given provider.
func NewEngine(provider ai.Provider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{provider: provider, logger: logger}
}

// Execute runs every job sequentially and returns the last job's output,
// the report when the batch came from BuildBatch. Any engine-level failure
// aborts the batch; no partial report is ever returned.
func (e *Engine) Execute(ctx context.Context, jobs []Job) (string, error) {
	if len(jobs) == 0 {
		return "", fmt.Errorf("empty job batch")
	}

	var outputs []string
	var last string
	for i, job := range jobs {
		prompt := job.Prompt
		if job.Kind == JobReport {
			prompt = ai.BuildReportPrompt(outputs)
		}

		e.logger.Debug("executing job",
			"index", i,
			"kind", job.Kind,
			"subject", job.Subject,
			"rows", job.Slice.Len(),
			"prompt_len", len(prompt),
		)

		out, err := e.provider.Complete(ctx, ai.Request{
			System: job.System,
			Prompt: prompt,
		})
		if err != nil {
			return "", fmt.Errorf("job %d (%s): %w", i+1, job.Kind, err)
		}

		outputs = append(outputs, out)
		last = out
	}

	e.logger.Info("job batch complete", "jobs", len(jobs), "report_len", len(last))
	return last, nil
}
