package source

import (
	"fmt"
	"strings"
	"time"

	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/usecase/lookup"
	"kisaanmitra/internal/usecase/normalize"
)

// Table is an immutable in-memory dataset. It is safe for concurrent readers.
type Table struct {
	name    string
	columns []string
	index   map[string]string // lowercased column -> column
	rows    []map[string]string
	loaded  time.Time
}

var _ lookup.Dataset = (*Table)(nil)

// NewTable builds a table from a header and rows. Short rows are padded with
// empty cells; extra cells are an error.
func NewTable(name string, header []string, records [][]string) (*Table, error) {
	t := &Table{
		name:   name,
		index:  make(map[string]string, len(header)),
		rows:   make([]map[string]string, 0, len(records)),
		loaded: time.Now().UTC(),
	}
	for _, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		t.columns = append(t.columns, h)
		t.index[strings.ToLower(h)] = h
	}
	for i, rec := range records {
		if len(rec) > len(t.columns) {
			return nil, fmt.Errorf("%s row %d: %d cells for %d columns", name, i+1, len(rec), len(t.columns))
		}
		row := make(map[string]string, len(t.columns))
		for j, col := range t.columns {
			if j < len(rec) {
				row[col] = strings.TrimSpace(rec[j])
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// Name returns the dataset identifier, usually its file path.
func (t *Table) Name() string { return t.name }

// Columns returns the header in file order.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// LoadedAt returns when the table was built.
func (t *Table) LoadedAt() time.Time { return t.loaded }

// Loaded reports true; a Table is only built from a complete load.
func (t *Table) Loaded() bool { return t != nil }

// Select returns a copy of the matching row with the latest date. Rows whose
// date cannot be parsed rank below dated rows; ties keep file order.
func (t *Table) Select(sel lookup.Selection) (domain.RawResponse, bool) {
	var (
		best     map[string]string
		bestDate time.Time
		bestOK   bool
	)
	for _, row := range t.rows {
		if !t.matches(row, sel.Matches) {
			continue
		}
		date, ok := t.date(row, sel.DateColumns, sel.DateLayouts)
		switch {
		case best == nil:
		case ok && (!bestOK || date.After(bestDate)):
		default:
			continue
		}
		best, bestDate, bestOK = row, date, ok
	}
	if best == nil {
		return nil, false
	}
	raw := make(domain.RawResponse, len(best))
	for k, v := range best {
		raw[k] = v
	}
	return raw, true
}

func (t *Table) matches(row map[string]string, matches []lookup.Match) bool {
	for _, m := range matches {
		cell, ok := t.cell(row, m.Columns)
		if !ok {
			return false
		}
		want := strings.ToLower(strings.TrimSpace(m.Value))
		got := strings.ToLower(cell)
		switch m.Policy {
		case lookup.MatchContains:
			if !strings.Contains(got, want) {
				return false
			}
		default:
			if got != want {
				return false
			}
		}
	}
	return true
}

// cell returns the value of the first alias column present in the header.
func (t *Table) cell(row map[string]string, columns []string) (string, bool) {
	for _, c := range columns {
		if col, ok := t.index[strings.ToLower(c)]; ok {
			return row[col], true
		}
	}
	return "", false
}

func (t *Table) date(row map[string]string, columns, layouts []string) (time.Time, bool) {
	if len(columns) == 0 {
		return time.Time{}, false
	}
	v, ok := t.cell(row, columns)
	if !ok || v == "" {
		return time.Time{}, false
	}
	d, err := normalize.ParseDate(v, layouts...)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
