package orders

import "fmt"

type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusPending    Status = "PENDING"
	StatusCollecting Status = "COLLECTING"
	StatusCollected  Status = "COLLECTED"
	StatusProcessing Status = "PROCESSING"
	StatusReady      Status = "READY"
	StatusDelivering Status = "DELIVERING"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// validNext encodes strict adjacency: no skipping ahead in the chain.
// Any non-terminal status may be cancelled. DELIVERED and CANCELLED have
// no outgoing transitions.
var validNext = map[Status]map[Status]bool{
	StatusDraft:      {StatusPending: true, StatusCancelled: true},
	StatusPending:    {StatusCollecting: true, StatusCancelled: true},
	StatusCollecting: {StatusCollected: true, StatusCancelled: true},
	StatusCollected:  {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusReady: true, StatusCancelled: true},
	StatusReady:      {StatusDelivering: true, StatusCancelled: true},
	StatusDelivering: {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func ValidStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}

func Terminal(s Status) bool {
	return len(validNext[s]) == 0 && ValidStatus(s)
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Step validates a requested transition, naming both states on failure.
func Step(from, to Status) error {
	if !ValidStatus(to) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}
