package trips

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// tripNumber renders a human-readable tracking number. Uniqueness comes from
// the trip id, not from this value.
func tripNumber(at time.Time) string {
	return fmt.Sprintf("TRP-%s-%04d", at.UTC().Format("20060102-150405"), rand.IntN(10000))
}

// nextStamp never returns a time before the latest recorded phase, so phase
// timestamps stay ordered when the clock steps backwards.
func nextStamp(now time.Time, recorded []time.Time) time.Time {
	stamp := now.UTC()
	for _, ts := range recorded {
		if ts.After(stamp) {
			stamp = ts.UTC()
		}
	}
	return stamp
}
