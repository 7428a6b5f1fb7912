package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dvloznov/lorry-checker/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadTable reads a comma-delimited log with a header row into a RawTable.
// Ragged rows are accepted; cells beyond the header are ignored later.
func ReadTable(r io.Reader) (*domain.RawTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ReadTable: reading input: %w: %v", ErrUnreadableInput, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ReadTable: parsing csv: %w: %v", ErrUnreadableInput, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ReadTable: %w", ErrEmptyInput)
	}

	return &domain.RawTable{
		Header: records[0],
		Rows:   records[1:],
	}, nil
}

// checkColumns returns the header position of every required column,
// or a MissingColumnsError naming all of the absent ones.
func checkColumns(t *domain.RawTable) (map[string]int, error) {
	idx := make(map[string]int, len(RequiredColumns))
	var missing []string
	for _, name := range RequiredColumns {
		i := t.ColumnIndex(name)
		if i < 0 {
			missing = append(missing, name)
			continue
		}
		idx[name] = i
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}
	return idx, nil
}

// Normalize filters the table to the configured checkpoint, builds the check-in and
// check-out timestamps and sorts the rows by check-in time.
//
// Rows with an undefined check-in sort after all defined ones; ties keep file order.
// The input table is not modified.
func Normalize(t *domain.RawTable, opts Options) ([]domain.Transaction, error) {
	if t == nil || len(t.Header) == 0 {
		return nil, fmt.Errorf("Normalize: %w", ErrEmptyInput)
	}
	idx, err := checkColumns(t)
	if err != nil {
		return nil, fmt.Errorf("Normalize: %w", err)
	}

	cell := func(row []string, col string) string {
		i := idx[col]
		if i >= len(row) {
			return ""
		}
		return row[i]
	}

	txs := make([]domain.Transaction, 0, len(t.Rows))
	for _, row := range t.Rows {
		if cell(row, ColCheckpoint) != opts.Checkpoint {
			continue
		}
		txs = append(txs, domain.Transaction{
			RCID:           cell(row, ColRCID),
			SACID:          cell(row, ColSACID),
			DriverName:     cell(row, ColDriverName),
			LorryNumber:    cell(row, ColLorryNumber),
			Checkpoint:     cell(row, ColCheckpoint),
			CheckIn:        combineTimestamp(cell(row, ColCheckInDate), cell(row, ColCheckInTime)),
			CheckOut:       combineTimestamp(cell(row, ColCheckOutDate), cell(row, ColCheckOutTime)),
			BTM:            parseNumber(cell(row, ColBTM)),
			AcceptedWeight: parseNumber(cell(row, ColAcceptedWeight)),
		})
	}

	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i].CheckIn, txs[j].CheckIn
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})

	return txs, nil
}

// parseNumber returns nil for empty, non-numeric or non-finite cells.
func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if isMissing(s) {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}

// isMissing matches the cell spellings spreadsheet exports use for "no value".
func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "nat", "null", "na", "n/a", "none":
		return true
	}
	return false
}
