package types

import "time"

// MessageKind categorizes a Message for routing-rule lookups.
type MessageKind string

const (
	KindRequest  MessageKind = "request"
	KindResponse MessageKind = "response"
	KindEvent    MessageKind = "event"
	KindCommand  MessageKind = "command"
)

// Recipient sentinels. Any other value names a specific participant.
const (
	RecipientBroadcast = "broadcast"
	RecipientControl   = "control"
)

// Message is the bus's unit of delivery. It is immutable once routed: the
// only thing that ever mutates after enqueue is the retry counter, and that
// counter lives in the bus-owned delivery envelope (see bus.envelope), never
// on this struct, so a Message can be safely copied by value.
type Message struct {
	ID            string
	Timestamp     time.Time
	Sender        string
	Recipient     string
	Kind          MessageKind
	Priority      Priority
	Payload       any
	CorrelationID string
	Timeout       time.Duration // zero means "use the bus default"
}

// Validate reports the first missing required attribute, or nil if the
// message is well-formed enough to route.
func (m *Message) Validate() error {
	if m.ID == "" {
		return NewError(ErrInvalidMessage, "message id is required")
	}
	if m.Sender == "" {
		return NewError(ErrInvalidMessage, "message sender is required")
	}
	if m.Recipient == "" {
		return NewError(ErrInvalidMessage, "message recipient is required")
	}
	switch m.Kind {
	case KindRequest, KindResponse, KindEvent, KindCommand:
	default:
		return NewError(ErrInvalidMessage, "message kind is invalid").WithContext("kind", m.Kind)
	}
	return nil
}
