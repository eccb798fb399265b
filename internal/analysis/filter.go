package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/maargasystems/timesheet-ai/internal/ai"
	"github.com/maargasystems/timesheet-ai/internal/timesheet"
)

// MaxFilteredRows caps the rows any filter may pass downstream, bounding the
// payload size of every analysis job.
const MaxFilteredRows = 5000

// ErrFilterSynthesis signals that no usable filter came back from the
// generative service. Callers degrade to the unfiltered table.
var ErrFilterSynthesis = errors.New("filter synthesis failed")

// Predicate is a validated boolean row filter. It is parsed from generative
// output as plain data and evaluated by this package; generator output is
// never executed as code. Evaluation touches only the in-memory table.
type Predicate struct {
	Op     string       `json:"op"`
	Column string       `json:"column,omitempty"`
	Value  string       `json:"value,omitempty"`
	Args   []*Predicate `json:"args,omitempty"`
}

const maxPredicateDepth = 10

// ParsePredicate decodes a predicate from the raw reply text. A reply whose
// filter field is JSON null means "keep every row" and yields nil, nil.
func ParsePredicate(raw string) (*Predicate, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrFilterSynthesis)
	}

	node := gjson.Get(body, "filter")
	if !node.Exists() {
		// Tolerate replies that return the node itself, unwrapped.
		node = gjson.Parse(body)
	}
	if node.Type == gjson.Null {
		return nil, nil
	}

	var p Predicate
	if err := json.Unmarshal([]byte(node.Raw), &p); err != nil {
		return nil, fmt.Errorf("%w: decoding filter: %w", ErrFilterSynthesis, err)
	}
	if p.Op == "" {
		return nil, fmt.Errorf("%w: filter missing op", ErrFilterSynthesis)
	}
	return &p, nil
}

// Validate checks the predicate against the table schema: known operators,
// known columns, bounded depth. An invalid predicate must never be
// evaluated.
func (p *Predicate) Validate(t *timesheet.Table) error {
	return p.validate(t, 0)
}

func (p *Predicate) validate(t *timesheet.Table, depth int) error {
	if p == nil {
		return fmt.Errorf("nil filter node")
	}
	if depth > maxPredicateDepth {
		return fmt.Errorf("filter nesting exceeds %d levels", maxPredicateDepth)
	}

	switch p.Op {
	case "and", "or":
		if len(p.Args) == 0 {
			return fmt.Errorf("%q requires at least one argument", p.Op)
		}
		for _, arg := range p.Args {
			if err := arg.validate(t, depth+1); err != nil {
				return err
			}
		}
		return nil
	case "not":
		if len(p.Args) != 1 {
			return fmt.Errorf("\"not\" requires exactly one argument")
		}
		return p.Args[0].validate(t, depth+1)
	case "eq", "ne", "contains", "gt", "ge", "lt", "le":
		if p.Column == "" {
			return fmt.Errorf("%q requires a column", p.Op)
		}
		if !t.HasColumn(p.Column) {
			return fmt.Errorf("unknown column %q", p.Column)
		}
		return nil
	default:
		return fmt.Errorf("unknown operator %q", p.Op)
	}
}

// Eval reports whether the row matches. The predicate must already have been
// validated against the row's table.
func (p *Predicate) Eval(r timesheet.Row) bool {
	switch p.Op {
	case "and":
		for _, arg := range p.Args {
			if !arg.Eval(r) {
				return false
			}
		}
		return true
	case "or":
		for _, arg := range p.Args {
			if arg.Eval(r) {
				return true
			}
		}
		return false
	case "not":
		return !p.Args[0].Eval(r)
	case "contains":
		return strings.Contains(strings.ToLower(r.String(p.Column)), strings.ToLower(p.Value))
	case "eq":
		return compare(r, p.Column, p.Value) == 0
	case "ne":
		return compare(r, p.Column, p.Value) != 0
	case "gt":
		return compare(r, p.Column, p.Value) > 0
	case "ge":
		return compare(r, p.Column, p.Value) >= 0
	case "lt":
		return compare(r, p.Column, p.Value) < 0
	case "le":
		return compare(r, p.Column, p.Value) <= 0
	default:
		return false
	}
}

// compare orders a cell against a literal: numerically when both sides are
// numbers, by date when both parse as dates, else lexically.
func compare(r timesheet.Row, column, literal string) int {
	cell := r.String(column)

	if cf, ok := r.Float(column); ok {
		if lf, err := strconv.ParseFloat(strings.TrimSpace(literal), 64); err == nil {
			switch {
			case cf < lf:
				return -1
			case cf > lf:
				return 1
			default:
				return 0
			}
		}
	}

	if ct, ok := timesheet.ParseDate(cell); ok {
		if lt, ok := timesheet.ParseDate(literal); ok {
			switch {
			case ct.Before(lt):
				return -1
			case ct.After(lt):
				return 1
			default:
				return 0
			}
		}
	}

	return strings.Compare(cell, literal)
}

// MergePredicates folds per-chunk predicates into one with logical OR, so a
// subject seen in any chunk of the preview still matches.
func MergePredicates(preds []*Predicate) *Predicate {
	var nonNil []*Predicate
	for _, p := range preds {
		if p != nil {
			nonNil = append(nonNil, p)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &Predicate{Op: "or", Args: nonNil}
	}
}

// Apply evaluates pred against the actual in-memory table and returns the
// matching rows, capped at MaxFilteredRows. A nil predicate keeps everything
// (still capped). A predicate that fails validation yields an empty table
// and a nil error: a bad filter degrades the result, it never crashes the
// request. The raw predicate goes to the log for postmortem.
func Apply(t *timesheet.Table, pred *Predicate, logger *slog.Logger) *timesheet.Table {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if pred == nil {
		return t.Head(MaxFilteredRows)
	}

	if err := pred.Validate(t); err != nil {
		rawJSON, _ := json.Marshal(pred)
		logger.Warn("filter failed validation, returning empty result",
			"error", err, "filter", string(rawJSON))
		return &timesheet.Table{Columns: t.Columns}
	}

	return t.Filter(pred.Eval, MaxFilteredRows)
}

// Synthesizer asks the generative service to describe a row filter for a
// question and turns the reply into a Predicate.
type Synthesizer struct {
	provider    ai.Provider
	chunkSize   int
	previewRows int
	logger      *slog.Logger
}

// NewSynthesizer creates a Synthesizer. chunkSize and previewRows fall back
// to DefaultChunkSize and MaxFilteredRows when non-positive.
func NewSynthesizer(provider ai.Provider, chunkSize, previewRows int, logger *slog.Logger) *Synthesizer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if previewRows <= 0 {
		previewRows = MaxFilteredRows
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Synthesizer{
		provider:    provider,
		chunkSize:   chunkSize,
		previewRows: previewRows,
		logger:      logger,
	}
}

// Synthesize sends the question plus a bounded preview of the table, one
// call per chunk, and merges the resulting filters with OR. It returns
// ErrFilterSynthesis when no chunk yields a usable filter; a nil predicate
// with nil error means "keep every row".
func (s *Synthesizer) Synthesize(ctx context.Context, t *timesheet.Table, question string) (*Predicate, error) {
	var schema map[string]any
	if err := json.Unmarshal([]byte(ai.FilterSchema), &schema); err != nil {
		return nil, fmt.Errorf("decoding filter schema: %w", err)
	}

	preview := t.Head(s.previewRows).Text()
	chunks := Chunk(preview, s.chunkSize)

	var (
		preds    []*Predicate
		keepAll  bool
		lastErr  error
		anyReply bool
	)
	for i, chunk := range chunks {
		raw, err := s.provider.Complete(ctx, ai.Request{
			System:     ai.FilterSystem,
			Prompt:     ai.BuildFilterPrompt(question, t.Columns, chunk),
			SchemaName: "row_filter",
			Schema:     schema,
		})
		if err != nil {
			lastErr = err
			s.logger.Warn("filter synthesis call failed", "chunk", i+1, "chunks", len(chunks), "error", err)
			continue
		}
		anyReply = true

		pred, err := ParsePredicate(raw)
		if err != nil {
			lastErr = err
			s.logger.Warn("filter reply unparseable", "chunk", i+1, "error", err, "raw", truncate(raw, 500))
			continue
		}
		if pred == nil {
			keepAll = true
			continue
		}
		preds = append(preds, pred)
	}

	if len(preds) == 0 {
		if anyReply && keepAll {
			return nil, nil
		}
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrFilterSynthesis, lastErr)
		}
		return nil, ErrFilterSynthesis
	}

	merged := MergePredicates(preds)
	s.logger.Info("filter synthesized", "chunks", len(chunks), "merged_filters", len(preds))
	return merged, nil
}
