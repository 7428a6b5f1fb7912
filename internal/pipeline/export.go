package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dvloznov/lorry-checker/internal/domain"
)

const (
	// ExportFilename is the download name of the shortlist.
	ExportFilename = "suspicious_lorry_transactions.csv"

	// ExportContentType is the MIME type of the shortlist.
	ExportContentType = "text/csv"

	exportTimeLayout = "2006-01-02 15:04:05"
)

// ExportColumns is the fixed header of the exported shortlist.
var ExportColumns = []string{
	ColRCID,
	ColSACID,
	ColDriverName,
	ColLorryNumber,
	"check_in_dt",
	"check_out_dt",
	ColBTM,
	ColAcceptedWeight,
	"flag_check_in_gap",
	"flag_duration_out_of_range",
	"flag_btm_variance",
	"flag_repeated_weight",
}

// WriteCSV writes the header and one line per row. When rows is empty it still
// writes the header and then returns ErrNoMatches.
func WriteCSV(w io.Writer, rows []domain.FlaggedTransaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return fmt.Errorf("WriteCSV: writing header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(exportRecord(row)); err != nil {
			return fmt.Errorf("WriteCSV: writing row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: flushing: %w", err)
	}
	if len(rows) == 0 {
		return ErrNoMatches
	}
	return nil
}

// MarshalCSV renders the shortlist into memory. The bytes are valid (header only)
// even when the returned error is ErrNoMatches.
func MarshalCSV(rows []domain.FlaggedTransaction) ([]byte, error) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, rows)
	if err != nil && !errors.Is(err, ErrNoMatches) {
		return nil, err
	}
	return buf.Bytes(), err
}

func exportRecord(row domain.FlaggedTransaction) []string {
	return []string{
		row.RCID,
		row.SACID,
		row.DriverName,
		row.LorryNumber,
		formatTime(row.CheckIn),
		formatTime(row.CheckOut),
		formatNumber(row.BTM),
		formatNumber(row.AcceptedWeight),
		formatBool(row.CheckInGap),
		formatBool(row.DurationOutOfRange),
		formatBool(row.BTMVariance),
		formatBool(row.RepeatedWeight),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(exportTimeLayout)
}

func formatNumber(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
