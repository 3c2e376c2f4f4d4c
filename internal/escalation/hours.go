package escalation

import "time"

// Default service window
const (
	DefaultOpenHour  = 8
	DefaultCloseHour = 18
)

// BusinessHours is the weekly service window, Monday to Friday.
type BusinessHours struct {
	Location  *time.Location
	OpenHour  int
	CloseHour int
}

// DefaultBusinessHours returns the 08h-18h weekday window in loc.
// A nil loc means the local time zone.
func DefaultBusinessHours(loc *time.Location) BusinessHours {
	if loc == nil {
		loc = time.Local
	}
	return BusinessHours{Location: loc, OpenHour: DefaultOpenHour, CloseHour: DefaultCloseHour}
}

// Open reports whether t falls inside the service window.
func (b BusinessHours) Open(t time.Time) bool {
	if b.Location != nil {
		t = t.In(b.Location)
	}
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	h := t.Hour()
	return h >= b.OpenHour && h < b.CloseHour
}
