package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Booking events pushed by the server.
const (
	EventBookingCreated       = "booking:created"
	EventBookingUpdated       = "booking:updated"
	EventBookingDeleted       = "booking:deleted"
	EventBookingStatusChanged = "booking:status_changed"
)

// BookingEvents are the events every booking list refreshes on.
var BookingEvents = []string{
	EventBookingCreated,
	EventBookingUpdated,
	EventBookingDeleted,
	EventBookingStatusChanged,
}

var (
	// ErrUnknownToken is returned when unsubscribing a token that is not registered.
	ErrUnknownToken = errors.New("realtime: unknown subscription token")
	// ErrInvalidEvent is returned for events without a name.
	ErrInvalidEvent = errors.New("realtime: event name is required")
)

// Payload is the body of an invalidation signal.
type Payload struct {
	Status   string `json:"status,omitempty"`
	// EntityID is encoded as affectedEntityId; entityId is accepted on decode.
	EntityID string `json:"affectedEntityId,omitempty"`
	Actor    string `json:"actor,omitempty"`
}

// Event is a named invalidation signal. It is consumed once per delivery.
type Event struct {
	Name    string  `json:"event"`
	Payload Payload `json:"payload"`
}

// Handler receives events of a subscription.
type Handler func(Event)

// Token identifies one subscription.
type Token string

// Channel delivers named events to subscribers.
type Channel interface {
	Subscribe(event string, h Handler) (Token, error)
	Unsubscribe(tok Token) error
}

// EncodeEvent produces the wire form of e.
func EncodeEvent(e Event) ([]byte, error) {
	if strings.TrimSpace(e.Name) == "" {
		return nil, ErrInvalidEvent
	}
	return json.Marshal(e)
}

// DecodeEvent parses the wire form produced by EncodeEvent.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("realtime: decode event: %w", err)
	}
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return Event{}, ErrInvalidEvent
	}
	if e.Payload.EntityID == "" {
		e.Payload.EntityID = gjson.GetBytes(data, "payload.entityId").String()
	}
	return e, nil
}
