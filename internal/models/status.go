package models

// Status is the delivery state of a message.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.rank() > 0
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
// Equal or earlier targets are rejected so status never regresses.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.Valid() && next.rank() > s.rank()
}

// StatusesBefore lists the statuses from which next is reachable.
func StatusesBefore(next Status) []Status {
	var out []Status
	for _, s := range []Status{StatusSent, StatusDelivered, StatusRead} {
		if s.CanAdvanceTo(next) {
			out = append(out, s)
		}
	}
	return out
}
