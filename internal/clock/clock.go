// Package clock is the single source of wall-clock and civil-date truth for
// the quiz engine. No other package may call time.Now or time.LoadLocation
// directly — every deadline decision flows through here.
package clock

import (
	"fmt"
	"time"
)

// Deadlines are the four daily anchor points derived from a quiz's
// scheduled live-start time T, all in the configured civil zone.
type Deadlines struct {
	LiveAt          time.Time // T
	LockAt          time.Time // T-10m
	PaymentCutoffAt time.Time // T-5m
	LiveEndAt       time.Time // T+30m
}

// Clock resolves "today" and derives deadlines in a fixed civil zone.
// Default zone is Asia/Kolkata per the spec; tests may construct one with
// any *time.Location to exercise boundary behavior deterministically.
type Clock struct {
	loc      *time.Location
	liveHour int
	liveMin  int
}

// New builds a Clock for the given IANA zone name with the quiz's daily
// live-start time expressed as hour:minute in that zone.
func New(zoneName string, liveHour, liveMin int) (*Clock, error) {
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", zoneName, err)
	}
	return &Clock{loc: loc, liveHour: liveHour, liveMin: liveMin}, nil
}

// Now returns the current instant. This is the one permitted call to the
// runtime clock; every other component must receive time from here.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Today returns the civil date key ("YYYY-MM-DD") for the current instant
// in the configured zone.
func (c *Clock) Today() string {
	return c.Now().Format("2006-01-02")
}

// DateKey formats an arbitrary instant as a civil date key in the
// configured zone.
func (c *Clock) DateKey(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// DeadlinesFor parses a civil date key and produces its four anchor
// deadlines using the Clock's configured daily live-start time.
func (c *Clock) DeadlinesFor(dateKey string) (Deadlines, error) {
	d, err := time.ParseInLocation("2006-01-02", dateKey, c.loc)
	if err != nil {
		return Deadlines{}, fmt.Errorf("parse date %q: %w", dateKey, err)
	}
	liveAt := time.Date(d.Year(), d.Month(), d.Day(), c.liveHour, c.liveMin, 0, 0, c.loc)
	return Deadlines{
		LiveAt:          liveAt,
		LockAt:          liveAt.Add(-10 * time.Minute),
		PaymentCutoffAt: liveAt.Add(-5 * time.Minute),
		LiveEndAt:       liveAt.Add(30 * time.Minute),
	}, nil
}

// DeadlinesForToday is a convenience wrapper over DeadlinesFor(Today()).
func (c *Clock) DeadlinesForToday() (Deadlines, error) {
	return c.DeadlinesFor(c.Today())
}

// Location exposes the configured zone, e.g. for formatting timestamps in
// admin-facing output.
func (c *Clock) Location() *time.Location {
	return c.loc
}
