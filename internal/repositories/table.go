package repositories

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
)

// Record is one data row keyed by header name.
type Record map[string]string

// Clone returns an independent copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with patch applied on top.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// table is a sheet whose columns are always addressed by header name.
type table struct {
	tx     *Tx
	name   string
	header []string
	index  map[string]int
	rows   [][]string
}

// sheet returns the named sheet, creating it or appending missing header
// columns as needed.
func (tx *Tx) sheet(name string) (*table, error) {
	if t, ok := tx.tables[name]; ok {
		return t, nil
	}
	canonical, known := entities.Headers[name]
	if !known {
		return nil, fmt.Errorf("unknown sheet %q", name)
	}

	idx, err := tx.file.GetSheetIndex(name)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", name, err)
	}
	var rows [][]string
	if idx == -1 {
		if _, err := tx.file.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
		tx.markDirty()
	} else {
		rows, err = tx.file.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
	}

	t := &table{tx: tx, name: name, index: map[string]int{}}
	if len(rows) > 0 {
		for i, h := range rows[0] {
			if h == "" {
				continue
			}
			if _, dup := t.index[h]; !dup {
				t.index[h] = i
			}
		}
		t.header = rows[0]
		t.rows = rows[1:]
	}
	for _, h := range canonical {
		if _, ok := t.index[h]; ok {
			continue
		}
		if err := t.appendColumn(h); err != nil {
			return nil, err
		}
	}
	tx.tables[name] = t
	return t, nil
}

// ensureSchema touches every known sheet so that it exists with all headers.
func (tx *Tx) ensureSchema() error {
	for _, name := range entities.SheetOrder {
		if _, err := tx.sheet(name); err != nil {
			return err
		}
	}
	return nil
}

func (t *table) appendColumn(name string) error {
	col := len(t.header) + 1
	cell, err := excelize.CoordinatesToCellName(col, 1)
	if err != nil {
		return err
	}
	if err := t.tx.file.SetCellStr(t.name, cell, name); err != nil {
		return fmt.Errorf("append header %s.%s: %w", t.name, name, err)
	}
	t.header = append(t.header, name)
	t.index[name] = col - 1
	t.tx.markDirty()
	return nil
}

func (t *table) Len() int { return len(t.rows) }

func (t *table) cell(row int, col string) string {
	i, ok := t.index[col]
	if !ok || row < 0 || row >= len(t.rows) {
		return ""
	}
	if i >= len(t.rows[row]) {
		return ""
	}
	return t.rows[row][i]
}

// Record returns data row i (0-based) as a header-keyed map.
func (t *table) Record(i int) Record {
	rec := make(Record, len(t.index))
	for name := range t.index {
		rec[name] = t.cell(i, name)
	}
	return rec
}

// RawRow returns the cells of data row i in sheet order.
func (t *table) RawRow(i int) []string {
	if i < 0 || i >= len(t.rows) {
		return nil
	}
	return t.rows[i]
}

// Records returns every non-empty data row.
func (t *table) Records() []Record {
	out := make([]Record, 0, len(t.rows))
	for i := range t.rows {
		if t.isBlank(i) {
			continue
		}
		out = append(out, t.Record(i))
	}
	return out
}

// FindAll returns the row indexes whose col equals value.
func (t *table) FindAll(col, value string) []int {
	var out []int
	for i := range t.rows {
		if t.cell(i, col) == value {
			out = append(out, i)
		}
	}
	return out
}

// FindOne returns the single row whose col equals value, or -1.
func (t *table) FindOne(col, value string) int {
	for i := range t.rows {
		if t.cell(i, col) == value {
			return i
		}
	}
	return -1
}

// Append writes rec as a new last row; keys that are not headers are dropped.
func (t *table) Append(rec Record) error {
	if !t.tx.write {
		return fmt.Errorf("append to %s in read-only transaction", t.name)
	}
	excelRow := len(t.rows) + 2
	row := make([]string, len(t.header))
	for name, value := range rec {
		col, ok := t.index[name]
		if !ok || value == "" {
			continue
		}
		if err := t.setCell(excelRow, col, value); err != nil {
			return err
		}
		row[col] = value
	}
	t.rows = append(t.rows, row)
	t.tx.markDirty()
	return nil
}

// Update patches the named columns of data row i.
func (t *table) Update(i int, patch Record) error {
	if !t.tx.write {
		return fmt.Errorf("update %s in read-only transaction", t.name)
	}
	if i < 0 || i >= len(t.rows) {
		return fmt.Errorf("row %d out of range in %s", i, t.name)
	}
	for name, value := range patch {
		col, ok := t.index[name]
		if !ok {
			continue
		}
		if err := t.setCell(i+2, col, value); err != nil {
			return err
		}
		for len(t.rows[i]) <= col {
			t.rows[i] = append(t.rows[i], "")
		}
		t.rows[i][col] = value
	}
	t.tx.markDirty()
	return nil
}

func (t *table) setCell(excelRow, col int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col+1, excelRow)
	if err != nil {
		return err
	}
	if err := t.tx.file.SetCellStr(t.name, cell, value); err != nil {
		return fmt.Errorf("write %s!%s: %w", t.name, cell, err)
	}
	return nil
}

func (t *table) isBlank(i int) bool {
	for _, v := range t.rows[i] {
		if v != "" {
			return false
		}
	}
	return true
}

// Has reports whether the sheet has a column with this header.
func (t *table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}
