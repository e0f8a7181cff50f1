// Package system provides the wall-clock implementation of harvest.Clock.
package system

import (
	"time"

	"github.com/ksaito/jobharvest/internal/harvest"
)

// Clock reads the system time.
type Clock struct{}

var _ harvest.Clock = Clock{}

// New returns a system clock.
func New() Clock { return Clock{} }

// Now returns the current time.
func (Clock) Now() time.Time { return time.Now() }
