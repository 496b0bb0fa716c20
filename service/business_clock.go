package service

import (
	"time"

	"eodmarker/models"
)

// DefaultBusinessTimezone is the zone business dates are derived in
const DefaultBusinessTimezone = "America/New_York"

// BusinessClock derives business dates from wall-clock time in a fixed timezone.
// Nothing is cached: every call reads the time source again, so the date rolls
// over at local midnight of the configured zone regardless of the host zone.
type BusinessClock struct {
	location *time.Location
	now      func() time.Time
}

// ClockOption configures a BusinessClock
type ClockOption func(*BusinessClock)

// WithNow replaces the time source, for tests and manual runs
func WithNow(now func() time.Time) ClockOption {
	return func(c *BusinessClock) {
		c.now = now
	}
}

// NewBusinessClock creates a clock for the given location
func NewBusinessClock(location *time.Location, opts ...ClockOption) *BusinessClock {
	c := &BusinessClock{
		location: location,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the current instant expressed in the business timezone
func (c *BusinessClock) Now() time.Time {
	return c.now().In(c.location)
}

// Today returns the current business date
func (c *BusinessClock) Today() models.BusinessDate {
	return models.BusinessDateOf(c.Now())
}

// Location returns the business timezone
func (c *BusinessClock) Location() *time.Location {
	return c.location
}
