package shared

import "time"

// Clock supplies the current time. TTL expiry and sale-date derivation both
// depend on "now", so services take a Clock instead of calling time.Now
// directly; tests substitute a frozen one.
type Clock func() time.Time

// SystemClock is the production clock.
func SystemClock() time.Time {
	return time.Now()
}
