package bus

import (
	"time"

	"github.com/google/uuid"
)

// Event is a change notification for a canonical locator.
type Event struct {
	ID        string
	Kind      string // the changed locator
	Timestamp time.Time
	Origin    string // process that produced the change, empty when local
	Payload   any
}

// Change returns a local change event for locator.
func Change(locator string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      locator,
		Timestamp: time.Now(),
	}
}
