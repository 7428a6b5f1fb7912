package pipeline

import (
	"math"

	"github.com/dvloznov/lorry-checker/internal/domain"
)

// LorryGroups maps a Lorry Number to the indices of its rows, in global chronological order.
// Rows with an empty Lorry Number belong to no group.
type LorryGroups map[string][]int

// GroupByLorry builds the per-lorry subsequences from an already sorted table.
func GroupByLorry(txs []domain.Transaction) LorryGroups {
	groups := make(LorryGroups)
	for i, tx := range txs {
		if tx.LorryNumber == "" {
			continue
		}
		groups[tx.LorryNumber] = append(groups[tx.LorryNumber], i)
	}
	return groups
}

// FlagCheckInGap computes the gap in minutes between each check-in and the previous
// row's check-in, and flags gaps below maxGap. The first row and undefined gaps never flag.
func FlagCheckInGap(txs []domain.Transaction, maxGap float64) ([]*float64, []bool) {
	gaps := make([]*float64, len(txs))
	flags := make([]bool, len(txs))
	for i := 1; i < len(txs); i++ {
		prev, cur := txs[i-1].CheckIn, txs[i].CheckIn
		if prev == nil || cur == nil {
			continue
		}
		g := cur.Sub(*prev).Minutes()
		gaps[i] = &g
		flags[i] = g < maxGap
	}
	return gaps, flags
}

// DurationBounds is the accepted band around the mean trip duration.
// Defined is false when no row had a computable duration.
type DurationBounds struct {
	Mean    float64 `json:"mean_minutes"`
	Lower   float64 `json:"lower_minutes"`
	Upper   float64 `json:"upper_minutes"`
	Defined bool    `json:"defined"`
}

// Contains reports whether d lies within the inclusive band.
// An undefined duration or undefined band is never contained.
func (b DurationBounds) Contains(d *float64) bool {
	if d == nil || !b.Defined {
		return false
	}
	return *d >= b.Lower && *d <= b.Upper
}

// FlagDurationOutOfRange flags every row whose trip duration is not within
// mean*(1-tolerance) .. mean*(1+tolerance). The mean ignores undefined durations;
// rows with an undefined duration are flagged.
func FlagDurationOutOfRange(txs []domain.Transaction, tolerance float64) ([]*float64, []bool, DurationBounds) {
	durations := make([]*float64, len(txs))
	var sum float64
	var n int
	for i, tx := range txs {
		d := tx.TripMinutes()
		durations[i] = d
		if d != nil && !math.IsNaN(*d) {
			sum += *d
			n++
		}
	}

	var bounds DurationBounds
	if n > 0 {
		mean := sum / float64(n)
		bounds = DurationBounds{
			Mean:    mean,
			Lower:   mean * (1 - tolerance),
			Upper:   mean * (1 + tolerance),
			Defined: true,
		}
	}

	flags := make([]bool, len(txs))
	for i, d := range durations {
		flags[i] = !bounds.Contains(d)
	}
	return durations, flags, bounds
}

// FlagBTMVariance computes each row's absolute BTM change against the previous row of the
// same lorry. A change above threshold is an exceedance; a lorry with more than
// maxExceedances of them has every one of its rows flagged.
func FlagBTMVariance(txs []domain.Transaction, groups LorryGroups, threshold float64, maxExceedances int) ([]*float64, []bool) {
	deltas := make([]*float64, len(txs))
	flags := make([]bool, len(txs))

	for _, rows := range groups {
		exceedances := 0
		for k := 1; k < len(rows); k++ {
			prev, cur := txs[rows[k-1]].BTM, txs[rows[k]].BTM
			if prev == nil || cur == nil {
				continue
			}
			d := math.Abs(*cur - *prev)
			deltas[rows[k]] = &d
			if d > threshold {
				exceedances++
			}
		}
		if exceedances > maxExceedances {
			for _, i := range rows {
				flags[i] = true
			}
		}
	}
	return deltas, flags
}

// FlagRepeatedWeight flags a row whose Accepted Weight exactly equals the previous
// row of the same lorry. Undefined weights never match.
func FlagRepeatedWeight(txs []domain.Transaction, groups LorryGroups) []bool {
	flags := make([]bool, len(txs))
	for _, rows := range groups {
		for k := 1; k < len(rows); k++ {
			prev, cur := txs[rows[k-1]].AcceptedWeight, txs[rows[k]].AcceptedWeight
			if prev == nil || cur == nil {
				continue
			}
			flags[rows[k]] = *cur == *prev
		}
	}
	return flags
}

// RuleResults carries every derived column produced by the rule engine, index-aligned
// with the normalized table.
type RuleResults struct {
	Gaps      []*float64
	Durations []*float64
	Deltas    []*float64
	Bounds    DurationBounds

	CheckInGap         []bool
	DurationOutOfRange []bool
	BTMVariance        []bool
	RepeatedWeight     []bool
}

// EvaluateRules runs the four independent rules over a normalized, sorted table.
func EvaluateRules(txs []domain.Transaction, opts Options) RuleResults {
	groups := GroupByLorry(txs)

	var r RuleResults
	r.Gaps, r.CheckInGap = FlagCheckInGap(txs, opts.CheckInGapMinutes)
	r.Durations, r.DurationOutOfRange, r.Bounds = FlagDurationOutOfRange(txs, opts.DurationTolerance)
	r.Deltas, r.BTMVariance = FlagBTMVariance(txs, groups, opts.BTMDeltaThreshold, opts.BTMMaxExceedances)
	r.RepeatedWeight = FlagRepeatedWeight(txs, groups)
	return r
}
