package store

import "time"

// Freshness is the three-tier classification of a cache entry's age.
type Freshness int

const (
	// Fresh entries are served as-is with no side effects.
	Fresh Freshness = iota

	// Stale entries are served immediately while a background refresh is
	// triggered.
	Stale

	// Absent means no usable entry: nothing cached, or older than the stale
	// threshold.
	Absent
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Absent:
		return "absent"
	default:
		return "unknown"
	}
}

// Classify maps an entry age onto a Freshness given the two configured
// thresholds (freshTTL < staleTTL). It is a pure function of its inputs:
//
//	age < freshTTL            -> Fresh
//	freshTTL <= age < staleTTL -> Stale
//	age >= staleTTL            -> Absent
func Classify(age, freshTTL, staleTTL time.Duration) Freshness {
	switch {
	case age < freshTTL:
		return Fresh
	case age < staleTTL:
		return Stale
	default:
		return Absent
	}
}
