package timesheet

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Canonical column names used by the SharePoint timesheet list. The select
// query sent to Graph requests exactly these fields.
var DefaultColumns = []string{
	"Title", "Modified", "Created", "EmployeeName", "Date", "ProjectName",
	"SOWCode", "Module", "Sprint", "TaskOrUserStory", "SubTask",
	"ActualTimeSpent", "Remarks", "Year", "Manager",
}

// Row is a single timesheet entry. Values come straight from the list item's
// fields object and are string, float64 or bool. Rows are never mutated after
// the table is built.
type Row map[string]any

// String returns the row's value for col rendered as text, or "" when absent.
func (r Row) String(col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// Float returns the row's value for col as a float64 when it is numeric or a
// parseable numeric string.
func (r Row) Float(col string) (float64, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Table is an ordered sequence of rows sharing one column schema.
type Table struct {
	Columns []string
	Rows    []Row
}

// New builds a table from raw list-item fields. Column names are normalized
// (SharePoint internal names can carry [ and ], which break downstream
// prompts) and the column order follows wanted, with any extra columns seen
// in the data appended alphabetically.
func New(wanted []string, items []map[string]any) *Table {
	t := &Table{}
	seen := make(map[string]bool)
	for _, c := range wanted {
		n := NormalizeColumn(c)
		if n != "" && !seen[n] {
			t.Columns = append(t.Columns, n)
			seen[n] = true
		}
	}

	var extra []string
	for _, item := range items {
		row := make(Row, len(item))
		for k, v := range item {
			n := NormalizeColumn(k)
			if n == "" {
				continue
			}
			row[n] = v
			if !seen[n] {
				seen[n] = true
				extra = append(extra, n)
			}
		}
		t.Rows = append(t.Rows, row)
	}

	sort.Strings(extra)
	t.Columns = append(t.Columns, extra...)
	return t
}

// NormalizeColumn strips the bracket characters SharePoint sometimes embeds
// in field names and trims whitespace.
func NormalizeColumn(name string) string {
	name = strings.ReplaceAll(name, "[", "")
	name = strings.ReplaceAll(name, "]", "")
	return strings.TrimSpace(name)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether col is part of the table schema.
func (t *Table) HasColumn(col string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Filter returns a new table containing the rows for which keep returns
// true, in the original order, capped at max rows (max <= 0 means no cap).
// The rows themselves are shared, never copied: rows are immutable.
func (t *Table) Filter(keep func(Row) bool, max int) *Table {
	out := &Table{Columns: t.Columns}
	for _, r := range t.Rows {
		if !keep(r) {
			continue
		}
		out.Rows = append(out.Rows, r)
		if max > 0 && len(out.Rows) >= max {
			break
		}
	}
	return out
}

// Head returns a table with at most n leading rows.
func (t *Table) Head(n int) *Table {
	if n <= 0 || n >= len(t.Rows) {
		return &Table{Columns: t.Columns, Rows: t.Rows}
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// SumFloat sums the numeric values of col over every row. Non-numeric cells
// contribute nothing.
func (t *Table) SumFloat(col string) float64 {
	var sum float64
	for _, r := range t.Rows {
		if f, ok := r.Float(col); ok {
			sum += f
		}
	}
	return sum
}

// Text renders the table as padded plain text, one row per line with a
// header, suitable for embedding in a prompt.
func (t *Table) Text() string {
	if t == nil || len(t.Columns) == 0 {
		return ""
	}

	widths := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		widths[i] = len(c)
	}
	cells := make([][]string, len(t.Rows))
	for ri, r := range t.Rows {
		line := make([]string, len(t.Columns))
		for ci, c := range t.Columns {
			s := r.String(c)
			line[ci] = s
			if len(s) > widths[ci] {
				widths[ci] = len(s)
			}
		}
		cells[ri] = line
	}

	var b strings.Builder
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString("  ")
		}
		pad(&b, c, widths[i])
	}
	b.WriteByte('\n')
	for _, line := range cells {
		for i, s := range line {
			if i > 0 {
				b.WriteString("  ")
			}
			pad(&b, s, widths[i])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func pad(b *strings.Builder, s string, width int) {
	b.WriteString(s)
	for i := len(s); i < width; i++ {
		b.WriteByte(' ')
	}
}

// ParseDate parses the date formats the list returns (ISO timestamps and
// bare dates). Used by the filter evaluator for date comparisons.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
		"01/02/2006",
	} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
