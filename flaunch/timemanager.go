package flaunch

import "time"

// TimeManager resolves the current time and converts raw on-chain
// timestamps to comparable instants. It is an interface so that
// time-dependent phase transitions can be tested deterministically.
type TimeManager interface {
	Now() time.Time

	// ToTime converts a raw unix-seconds timestamp to a time.Time. The
	// second return value is false when the timestamp is absent, i.e. the
	// account field has not been configured yet.
	ToTime(raw int64) (time.Time, bool)
}

// SystemTimeManager is the production TimeManager backed by the wall clock.
type SystemTimeManager struct{}

func (SystemTimeManager) Now() time.Time {
	return time.Now()
}

func (SystemTimeManager) ToTime(raw int64) (time.Time, bool) {
	if raw <= 0 {
		return time.Time{}, false
	}
	return time.Unix(raw, 0), true
}
