package pipeline

import (
	"github.com/dvloznov/lorry-checker/internal/domain"
)

// Combine zips the normalized rows with their rule outputs into flagged rows.
func Combine(txs []domain.Transaction, r RuleResults) []domain.FlaggedTransaction {
	out := make([]domain.FlaggedTransaction, len(txs))
	for i, tx := range txs {
		out[i] = domain.FlaggedTransaction{
			Transaction:       tx,
			CheckInGapMinutes: r.Gaps[i],
			TripMinutes:       r.Durations[i],
			BTMDelta:          r.Deltas[i],
			Flags: domain.Flags{
				CheckInGap:         r.CheckInGap[i],
				DurationOutOfRange: r.DurationOutOfRange[i],
				BTMVariance:        r.BTMVariance[i],
				RepeatedWeight:     r.RepeatedWeight[i],
			},
		}
	}
	return out
}

// SelectExported keeps the rows matching the export predicate, preserving order.
// See domain.Flags.Exported: this is not the same set as the suspicious rows.
func SelectExported(rows []domain.FlaggedTransaction) []domain.FlaggedTransaction {
	out := make([]domain.FlaggedTransaction, 0, len(rows))
	for _, row := range rows {
		if row.Exported() {
			out = append(out, row)
		}
	}
	return out
}

// CountSuspicious counts rows with at least one flag set.
func CountSuspicious(rows []domain.FlaggedTransaction) int {
	n := 0
	for _, row := range rows {
		if row.Suspicious() {
			n++
		}
	}
	return n
}
