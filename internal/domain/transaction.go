package domain

import (
	"time"
)

// RawTable is a header-driven table of text cells as read from the uploaded log.
// Rows are not guaranteed to have the same length as Header.
type RawTable struct {
	Header []string
	Rows   [][]string
}

// ColumnIndex returns the position of name in the header, or -1.
func (t *RawTable) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Transaction represents one weighbridge event after normalization.
// Fields that may be missing in the source are pointers: nil means undefined.
type Transaction struct {
	RCID        string
	SACID       string
	DriverName  string
	LorryNumber string // groups rows into a per-lorry sequence; empty means no group
	Checkpoint  string // "WB In"

	CheckIn  *time.Time // check In + check In Time, day-first
	CheckOut *time.Time // check Out + check Out Time, day-first

	BTM            *float64
	AcceptedWeight *float64
}

// TripMinutes returns check-out minus check-in in minutes, or nil when either side is undefined.
func (t Transaction) TripMinutes() *float64 {
	if t.CheckIn == nil || t.CheckOut == nil {
		return nil
	}
	m := t.CheckOut.Sub(*t.CheckIn).Minutes()
	return &m
}

// Flags holds the four heuristic outcomes for one row.
type Flags struct {
	CheckInGap         bool `json:"flag_check_in_gap"`
	DurationOutOfRange bool `json:"flag_duration_out_of_range"`
	BTMVariance        bool `json:"flag_btm_variance"`
	RepeatedWeight     bool `json:"flag_repeated_weight"`
}

// Suspicious is the plain union of all four flags.
func (f Flags) Suspicious() bool {
	return f.CheckInGap || f.DurationOutOfRange || f.BTMVariance || f.RepeatedWeight
}

// Exported is the selection predicate for the exported shortlist.
// Note the duration branch is negated: an in-range duration alone selects the row.
func (f Flags) Exported() bool {
	return f.CheckInGap || !f.DurationOutOfRange || f.BTMVariance || f.RepeatedWeight
}

// FlaggedTransaction is a Transaction together with its derived measurements and flags.
type FlaggedTransaction struct {
	Transaction

	CheckInGapMinutes *float64 // against the global chronological predecessor
	TripMinutes       *float64
	BTMDelta          *float64 // absolute, against the same lorry's predecessor

	Flags
}
