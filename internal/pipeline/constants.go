package pipeline

// Default values for the weighbridge rules.
// These can be overridden via the rules section of the YAML config.
const (
	// DefaultCheckpoint is the weighbridge station whose rows are audited.
	DefaultCheckpoint = "WB01"

	// DefaultCheckInGapMinutes flags a check-in closer than this to the previous one.
	DefaultCheckInGapMinutes = 1.0

	// DefaultDurationTolerance is the relative band around the mean trip duration.
	DefaultDurationTolerance = 0.4

	// DefaultBTMDeltaThreshold is the per-lorry BTM jump (kg) counted as an exceedance.
	DefaultBTMDeltaThreshold = 1500.0

	// DefaultBTMMaxExceedances is how many exceedances a lorry may have before all its rows are flagged.
	DefaultBTMMaxExceedances = 1
)

// Input column names.
const (
	ColCheckpoint     = "WB In"
	ColCheckInDate    = "check In"
	ColCheckInTime    = "check In Time"
	ColCheckOutDate   = "check Out"
	ColCheckOutTime   = "check Out Time"
	ColRCID           = "RC ID"
	ColSACID          = "SAC ID"
	ColDriverName     = "Driver Name"
	ColLorryNumber    = "Lorry Number"
	ColBTM            = "BTM"
	ColAcceptedWeight = "Accepted Weight"
)

// RequiredColumns must all be present in the header of an uploaded log.
var RequiredColumns = []string{
	ColCheckpoint,
	ColCheckInDate,
	ColCheckInTime,
	ColCheckOutDate,
	ColCheckOutTime,
	ColRCID,
	ColSACID,
	ColDriverName,
	ColLorryNumber,
	ColBTM,
	ColAcceptedWeight,
}

// Options tunes the rule engine. The zero value is not useful; start from DefaultOptions.
type Options struct {
	Checkpoint        string
	CheckInGapMinutes float64
	DurationTolerance float64
	BTMDeltaThreshold float64
	BTMMaxExceedances int
}

// DefaultOptions returns the thresholds the auditors agreed on.
func DefaultOptions() Options {
	return Options{
		Checkpoint:        DefaultCheckpoint,
		CheckInGapMinutes: DefaultCheckInGapMinutes,
		DurationTolerance: DefaultDurationTolerance,
		BTMDeltaThreshold: DefaultBTMDeltaThreshold,
		BTMMaxExceedances: DefaultBTMMaxExceedances,
	}
}
