package session

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusLocked    Status = "locked"
	StatusOrdered   Status = "ordered"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// locked and ordered are reserved for a checkout hand-off window; nothing in
// the service moves a session into them yet.
var transitions = map[Status][]Status{
	StatusActive:  {StatusLocked, StatusCompleted, StatusCancelled},
	StatusLocked:  {StatusOrdered},
	StatusOrdered: {StatusCompleted},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusLocked, StatusOrdered, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether a session may move from one status to another.
// Status only ever advances; nothing returns to active.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParticipantStatus is a participant's membership state.
type ParticipantStatus string

const (
	ParticipantActive ParticipantStatus = "active"
	ParticipantLeft   ParticipantStatus = "left"
	ParticipantKicked ParticipantStatus = "kicked"
)

// Valid reports whether s is a known participant status.
func (s ParticipantStatus) Valid() bool {
	switch s {
	case ParticipantActive, ParticipantLeft, ParticipantKicked:
		return true
	}
	return false
}
