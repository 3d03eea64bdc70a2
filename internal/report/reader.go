package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotFound is returned when an artifact has not been published yet
var ErrNotFound = errors.New("report not found")

// Filter narrows a table read. Zero values match everything; Limit <= 0 is unlimited.
type Filter struct {
	StoreID string
	ItemID  string
	Limit   int
}

// Table is a parsed CSV artifact
type Table struct {
	Columns []string
	Rows    [][]string
}

var textColumns = map[string]bool{
	"id": true, "item_id": true, "store_id": true, "cat_id": true,
	"dept_id": true, "state_id": true, "date": true,
}

// Records renders rows as column->value maps. Numeric cells become float64,
// empty numeric cells null.
func (t *Table) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		rec := make(map[string]interface{}, len(t.Columns))
		for j, col := range t.Columns {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			if textColumns[col] {
				rec[col] = cell
				continue
			}
			if cell == "" {
				rec[col] = nil
				continue
			}
			if v, err := strconv.ParseFloat(cell, 64); err == nil {
				rec[col] = v
			} else {
				rec[col] = cell
			}
		}
		out[i] = rec
	}
	return out
}

// Store reads published artifacts from a reports directory
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the local path of a downloadable artifact
func (s *Store) Path(name string) (string, error) {
	if !Downloadable(name) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	p := filepath.Join(s.dir, name)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", err
	}
	return p, nil
}

// Summary returns the raw summary_metrics.json
func (s *Store) Summary() ([]byte, error) {
	p, err := s.Path(SummaryFile)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Table reads a CSV artifact applying f
func (s *Store) Table(name string, f Filter) (*Table, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadTable(file, f)
}

// ReadTable parses CSV from r applying f. Filters on a column the table lacks match nothing.
func ReadTable(r io.Reader, f Filter) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	storeCol, itemCol := -1, -1
	for i, col := range header {
		switch col {
		case "store_id":
			storeCol = i
		case "item_id":
			itemCol = i
		}
	}
	if (f.StoreID != "" && storeCol < 0) || (f.ItemID != "" && itemCol < 0) {
		return &Table{Columns: header}, nil
	}

	t := &Table{Columns: header}
	for f.Limit <= 0 || len(t.Rows) < f.Limit {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if f.StoreID != "" && !strings.EqualFold(row[storeCol], f.StoreID) {
			continue
		}
		if f.ItemID != "" && !strings.EqualFold(row[itemCol], f.ItemID) {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
