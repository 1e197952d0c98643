package fraud

import "time"

// Clock supplies the current time to the evaluators. Every window boundary
// and the unusual-hours check derive from Clock.Now, so tests can pin "now".
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by the wall clock.
func SystemClock() Clock { return systemClock{} }
