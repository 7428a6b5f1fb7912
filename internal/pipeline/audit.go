package pipeline

import (
	"fmt"

	"github.com/dvloznov/lorry-checker/internal/domain"
	"github.com/google/uuid"
)

// Report is the outcome of one audit run over one uploaded log.
type Report struct {
	RunID string

	RowsRead    int // data rows in the file
	RowsInScope int // rows at the audited checkpoint

	// Rows is the full flagged table in chronological order.
	Rows []domain.FlaggedTransaction

	// Exported is the shortlist selected by the export predicate.
	Exported []domain.FlaggedTransaction

	// SuspiciousCount is the number of rows with any flag set.
	SuspiciousCount int

	Bounds DurationBounds
}

// Empty reports whether nothing was selected for export.
func (r *Report) Empty() bool {
	return len(r.Exported) == 0
}

// Summary is the one-line text shown next to the shortlist.
func (r *Report) Summary() string {
	if r.Empty() {
		return "No records matched the suspicious filter criteria."
	}
	return fmt.Sprintf("%d suspicious records found.", len(r.Exported))
}

// Run audits one raw table: normalize, evaluate the rules, combine and select.
// It does not touch the input table and has no side effects.
func Run(table *domain.RawTable, opts Options) (*Report, error) {
	txs, err := Normalize(table, opts)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	results := EvaluateRules(txs, opts)
	rows := Combine(txs, results)

	return &Report{
		RunID:           uuid.NewString(),
		RowsRead:        len(table.Rows),
		RowsInScope:     len(txs),
		Rows:            rows,
		Exported:        SelectExported(rows),
		SuspiciousCount: CountSuspicious(rows),
		Bounds:          results.Bounds,
	}, nil
}
