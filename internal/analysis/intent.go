package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	naturaldate "github.com/tj/go-naturaldate"

	"github.com/maargasystems/timesheet-ai/internal/ai"
)

// Category is the canned analysis a question routes to.
type Category string

const (
	CategoryProject  Category = "ProjectAnalysis"
	CategoryEmployee Category = "EmployeeAnalysis"
	CategoryTime     Category = "TimeAnalysis"
	CategoryGeneral  Category = "GeneralAnalysis"
)

// ErrIntentParse signals that the classifier's reply could not be understood.
// Callers degrade to GeneralAnalysis instead of failing the request.
var ErrIntentParse = errors.New("could not determine analysis type")

// Intent is the classified meaning of one question. Derived fresh per
// question, never persisted.
type Intent struct {
	Category    Category
	Subject     string // project or employee name, when applicable
	Granularity string // "", "Year", "Month", "Day" or "Date"
	// Anchor is a concrete date parsed from the question for time-flavored
	// intents; zero when no date phrase parsed.
	Anchor time.Time
}

// GeneralIntent is the fallback when classification fails.
func GeneralIntent() Intent {
	return Intent{Category: CategoryGeneral}
}

// intentReply is the structured reply requested from the classifier call.
type intentReply struct {
	Category        string `json:"category" jsonschema:"enum=Project Analysis,enum=Employee Analysis,enum=Time Analysis,enum=General Analysis"`
	SubjectName     string `json:"subject_name" jsonschema_description:"Project or employee name extracted from the question, empty if none"`
	TimeGranularity string `json:"time_granularity" jsonschema:"enum=,enum=Year,enum=Month,enum=Day,enum=Date"`
}

// Classifier turns a free-text question into an Intent with one structured
// generative call. No retries: one failed call is terminal for the request.
type Classifier struct {
	provider ai.Provider
	now      func() time.Time
	logger   *slog.Logger
}

// NewClassifier creates a Classifier on top of the given provider.
func NewClassifier(provider ai.Provider, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Classifier{provider: provider, now: time.Now, logger: logger}
}

// Classify determines the analysis category, subject and time granularity of
// a question. A malformed reply returns ErrIntentParse wrapped with detail.
func (c *Classifier) Classify(ctx context.Context, question string) (Intent, error) {
	if strings.TrimSpace(question) == "" {
		return Intent{}, fmt.Errorf("%w: empty question", ErrIntentParse)
	}

	schema, err := ai.SchemaFor(&intentReply{})
	if err != nil {
		return Intent{}, fmt.Errorf("building intent schema: %w", err)
	}

	raw, err := c.provider.Complete(ctx, ai.Request{
		System:     ai.ClassifySystem,
		Prompt:     ai.BuildClassifyPrompt(question),
		SchemaName: "question_intent",
		Schema:     schema,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("classifying question: %w", err)
	}

	intent, err := parseIntent(raw)
	if err != nil {
		c.logger.Warn("intent reply unparseable", "error", err, "raw", truncate(raw, 500))
		return Intent{}, err
	}

	if intent.Category == CategoryTime {
		// Best effort: pin the time phrase to a concrete date so the
		// downstream filter has something to validate against.
		if anchor, err := naturaldate.Parse(question, c.now(), naturaldate.WithDirection(naturaldate.Past)); err == nil {
			intent.Anchor = anchor
		}
	}

	c.logger.Info("question classified",
		"category", intent.Category,
		"subject", intent.Subject,
		"granularity", intent.Granularity,
	)
	return intent, nil
}

// parseIntent extracts an Intent from the classifier's reply. gjson copes
// with replies that wrap the JSON in prose or code fences.
func parseIntent(raw string) (Intent, error) {
	body := extractJSON(raw)
	if body == "" {
		return Intent{}, fmt.Errorf("%w: no JSON object in reply", ErrIntentParse)
	}

	category := gjson.Get(body, "category").String()
	if category == "" {
		return Intent{}, fmt.Errorf("%w: reply missing category", ErrIntentParse)
	}

	intent := Intent{
		Subject:     strings.TrimSpace(gjson.Get(body, "subject_name").String()),
		Granularity: normalizeGranularity(gjson.Get(body, "time_granularity").String()),
	}

	switch strings.ReplaceAll(strings.ToLower(category), " ", "") {
	case "projectanalysis":
		intent.Category = CategoryProject
	case "employeeanalysis":
		intent.Category = CategoryEmployee
	case "timeanalysis":
		intent.Category = CategoryTime
	case "generalanalysis":
		intent.Category = CategoryGeneral
	default:
		return Intent{}, fmt.Errorf("%w: unknown category %q", ErrIntentParse, category)
	}
	return intent, nil
}

func normalizeGranularity(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "year":
		return "Year"
	case "month":
		return "Month"
	case "day":
		return "Day"
	case "date":
		return "Date"
	default:
		return ""
	}
}

// extractJSON returns the outermost JSON object embedded in s, or "" when
// none parses.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	body := s[start : end+1]
	if !gjson.Valid(body) {
		return ""
	}
	return body
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
