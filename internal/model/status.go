package model

// Status is the canonical category of a pipeline or execution status label.
type Status string

const (
	StatusWon                Status = "won"
	StatusLost               Status = "lost"
	StatusOpen               Status = "open"
	StatusNegotiation        Status = "negotiation"
	StatusOnHold             Status = "on_hold"
	StatusCompleted          Status = "completed"
	StatusOngoing            Status = "ongoing"
	StatusNotStarted         Status = "not_started"
	StatusPaused             Status = "paused"
	StatusPartiallyCompleted Status = "partially_completed"
	StatusPending            Status = "pending"
	StatusQueued             Status = "queued"
	StatusUnknown            Status = "unknown"
)

var knownStatuses = map[Status]bool{
	StatusWon: true, StatusLost: true, StatusOpen: true, StatusNegotiation: true,
	StatusOnHold: true, StatusCompleted: true, StatusOngoing: true,
	StatusNotStarted: true, StatusPaused: true, StatusPartiallyCompleted: true,
	StatusPending: true, StatusQueued: true, StatusUnknown: true,
}

// Valid reports whether s is one of the fixed categories.
func (s Status) Valid() bool {
	return knownStatuses[s]
}

// StatusIn reports whether s is in set.
func StatusIn(s Status, set []Status) bool {
	for _, c := range set {
		if c == s {
			return true
		}
	}
	return false
}
