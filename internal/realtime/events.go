package realtime

// EventKind enumerates everything the realtime channel can carry.
type EventKind string

const (
	EventNewMessage      EventKind = "new-message"
	EventMessageEdited   EventKind = "message-edited"
	EventMessageDeleted  EventKind = "message-deleted"
	EventReactionAdded   EventKind = "reaction-added"
	EventTypingStart     EventKind = "typing-start"
	EventTypingStop      EventKind = "typing-stop"
	EventReadReceipt     EventKind = "read-receipt"
	EventPresenceChanged EventKind = "presence-changed"
)

// Event is the wire shape pushed to sessions. Seq is a monotonically
// increasing per-conversation counter assigned by the bus, so clients can
// detect gaps and request a resync.
type Event struct {
	Kind           EventKind   `json:"kind"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Seq            int64       `json:"seq,omitempty"`
	UserID         string      `json:"user_id,omitempty"`
	Payload        interface{} `json:"payload,omitempty"`
}

// PresencePayload is the body of a presence-changed event.
type PresencePayload struct {
	Online bool `json:"online"`
}
