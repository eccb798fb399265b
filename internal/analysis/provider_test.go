package analysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/maargasystems/timesheet-ai/internal/ai"
	"github.com/maargasystems/timesheet-ai/internal/timesheet"
)

// scriptedProvider replays canned replies in order and records every
// request it saw.
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []ai.Request
}

func (p *scriptedProvider) Complete(ctx context.Context, req ai.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := len(p.requests)
	p.requests = append(p.requests, req)

	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i >= len(p.replies) {
		return "", fmt.Errorf("scripted provider exhausted after %d replies", len(p.replies))
	}
	return p.replies[i], nil
}

// testTable builds a small timesheet table for router and filter tests.
func testTable() *timesheet.Table {
	items := []map[string]any{
		{"EmployeeName": "Alice", "ProjectName": "Apollo CRM", "ActualTimeSpent": 2.0, "Date": "2024-03-01", "Year": "2024", "Month": "March"},
		{"EmployeeName": "Alice", "ProjectName": "Apollo CRM", "ActualTimeSpent": 2.5, "Date": "2024-03-02", "Year": "2024", "Month": "March"},
		{"EmployeeName": "Alice", "ProjectName": "Zeus Portal", "ActualTimeSpent": 1.5, "Date": "2024-03-03", "Year": "2024", "Month": "March"},
		{"EmployeeName": "Bob", "ProjectName": "Zeus Portal", "ActualTimeSpent": 8.0, "Date": "2024-03-01", "Year": "2024", "Month": "March"},
	}
	return timesheet.New([]string{"EmployeeName", "ProjectName", "ActualTimeSpent", "Date", "Year", "Month"}, items)
}

// newBulkTable builds a table from arbitrary items keeping their keys as
// columns, for tests that need more rows than testTable provides.
func newBulkTable(items []map[string]any) *timesheet.Table {
	var cols []string
	if len(items) > 0 {
		for k := range items[0] {
			cols = append(cols, k)
		}
	}
	return timesheet.New(cols, items)
}
