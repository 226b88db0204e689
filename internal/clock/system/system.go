// Package system provides the wall clock used to stamp archive records.
package system

import (
	"time"

	"github.com/JakeFAU/tab-harvester/internal/harvest"
)

// Clock reads time.Now in UTC.
type Clock struct{}

var _ harvest.Clock = Clock{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
