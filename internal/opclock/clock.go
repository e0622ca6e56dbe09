// Package opclock maps wall-clock time to the warehouse operational date.
//
// Warehouse shifts run past midnight, so the business day rolls over at a
// boundary hour (02:00 by default) rather than at 00:00. The host clock is
// assumed to run in the warehouse's local timezone.
package opclock

import "time"

// DefaultBoundaryHour is the local hour at which the operational date advances.
const DefaultBoundaryHour = 2

const (
	apexLayout      = "01-02-2006"
	loadEntryLayout = "2006-01-02"
)

// Clock computes operational dates.
type Clock struct {
	BoundaryHour int
	Now          func() time.Time
}

// New returns a Clock using the host clock and the given boundary hour.
func New(boundaryHour int) *Clock {
	return &Clock{BoundaryHour: boundaryHour, Now: time.Now}
}

// Today returns the operational date for the current instant.
func (c *Clock) Today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return c.Date(now())
}

// Date returns midnight of the operational date that t falls in.
func (c *Clock) Date(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if t.Hour() < c.BoundaryHour {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// OperationalDate is Date with the default 02:00 boundary.
func OperationalDate(t time.Time) time.Time {
	return (&Clock{BoundaryHour: DefaultBoundaryHour}).Date(t)
}

// ApexFormat formats an operational date as MM-DD-YYYY for the PO and
// ancillary sources.
func ApexFormat(d time.Time) string {
	return d.Format(apexLayout)
}

// LoadEntryFormat formats an operational date as YYYY-MM-DD for the truck
// summary source.
func LoadEntryFormat(d time.Time) string {
	return d.Format(loadEntryLayout)
}
