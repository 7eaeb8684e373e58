package domain

import "time"

// Event represents a scheduled club run with a fixed participant capacity.
// ConfirmedCount is a cached derived counter; the registration rows remain
// the source of truth and the counter is adjusted in the same transaction
// that changes a registration's status.
type Event struct {
	ID             string
	Name           string
	Capacity       int
	ConfirmedCount int
	StartsAt       time.Time
	CreatedAt      time.Time
}

// Full reports whether no confirmed slots remain. A capacity of zero is
// legal and means the event only waitlists.
func (e Event) Full() bool {
	return e.ConfirmedCount >= e.Capacity
}
