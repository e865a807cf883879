// Package system provides a real clock implementation.
package system

import "time"

// Clock implements harvest.Clock using time.Now.
type Clock struct {
	loc *time.Location
}

// New creates a Clock that reports UTC.
func New() *Clock {
	return &Clock{loc: time.UTC}
}

// NewIn creates a Clock that reports times in loc, which lets export
// filenames follow the operator's wall clock.
func NewIn(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	if c == nil || c.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.loc)
}
