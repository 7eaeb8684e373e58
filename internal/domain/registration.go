package domain

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusWaitlist  Status = "waitlist"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether the status is one of the four known values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusWaitlist, StatusCancelled:
		return true
	}
	return false
}

// transitions is the single authority on legal status moves. Cancelled is
// terminal: it has no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusWaitlist, StatusCancelled},
	StatusWaitlist:  {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
	StatusCancelled: {},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Registration is an account's claim on a slot in an event. Rows are never
// deleted; a cancelled registration keeps its row as an audit trail and a
// later re-registration creates a new one.
type Registration struct {
	ID           string
	EventID      string
	AccountID    string
	Status       Status
	RegisteredAt time.Time
}

// Active reports whether the registration still occupies its (event,
// account) pair. Only cancelled registrations are inactive.
func (r Registration) Active() bool {
	return r.Status != StatusCancelled
}
