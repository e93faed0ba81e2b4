package sync

import "time"

const defaultFrequencyHours = 24

// IsSyncDue reports whether a sync should run at now. A zero lastSync means
// the sync never ran. Elapsed time is compared in fractional hours; a
// non-positive frequency falls back to 24 hours.
func IsSyncDue(lastSync time.Time, frequencyHours int, now time.Time) bool {
	if lastSync.IsZero() {
		return true
	}
	if frequencyHours <= 0 {
		frequencyHours = defaultFrequencyHours
	}
	return now.Sub(lastSync).Hours() >= float64(frequencyHours)
}
