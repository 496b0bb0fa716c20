package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// BusinessDateLayout is the canonical text form of a business date
const BusinessDateLayout = "2006-01-02"

// BusinessDate represents a value object for the trading/reporting day.
// It carries no time of day and no timezone.
type BusinessDate struct {
	Year  int
	Month time.Month
	Day   int
}

// NewBusinessDate creates a BusinessDate, normalizing out-of-range values
// the same way time.Date does (e.g. March 32 becomes April 1)
func NewBusinessDate(year int, month time.Month, day int) BusinessDate {
	return BusinessDateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// BusinessDateOf returns the calendar date of t in t's own location
func BusinessDateOf(t time.Time) BusinessDate {
	y, m, d := t.Date()
	return BusinessDate{Year: y, Month: m, Day: d}
}

// ParseBusinessDate parses a YYYY-MM-DD string
func ParseBusinessDate(s string) (BusinessDate, error) {
	t, err := time.Parse(BusinessDateLayout, s)
	if err != nil {
		return BusinessDate{}, fmt.Errorf("invalid business date %q: %w", s, err)
	}
	return BusinessDateOf(t), nil
}

// Time returns midnight UTC of the date, which is how it is stored in DATE columns
func (d BusinessDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// In returns local midnight of the date in loc
func (d BusinessDate) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns the date n calendar days later (earlier when n is negative)
func (d BusinessDate) AddDays(n int) BusinessDate {
	return BusinessDateOf(d.Time().AddDate(0, 0, n))
}

// Weekday returns the day of the week of the date
func (d BusinessDate) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// IsWeekday returns true for Monday through Friday
func (d BusinessDate) IsWeekday() bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsZero reports whether the date is unset
func (d BusinessDate) IsZero() bool {
	return d == BusinessDate{}
}

func (d BusinessDate) Equal(other BusinessDate) bool {
	return d == other
}

func (d BusinessDate) Before(other BusinessDate) bool {
	return d.Time().Before(other.Time())
}

func (d BusinessDate) After(other BusinessDate) bool {
	return d.Time().After(other.Time())
}

// String formats the date as YYYY-MM-DD
func (d BusinessDate) String() string {
	return d.Time().Format(BusinessDateLayout)
}

// MarshalJSON encodes the date as a YYYY-MM-DD string
func (d BusinessDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a YYYY-MM-DD string
func (d *BusinessDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("business date must be a string: %w", err)
	}
	parsed, err := ParseBusinessDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
