// Package clock abstracts time for components that need deterministic tests.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System implements Clock using time.Now.
type System struct{}

// NewSystem creates a new System clock.
func NewSystem() *System {
	return &System{}
}

// Now returns the current time.
func (System) Now() time.Time {
	return time.Now().UTC()
}
