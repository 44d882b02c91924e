package models

// MessageType marks system notices. User messages leave it empty.
type MessageType string

const (
	MessageTypeRoomOpen   MessageType = "ROOM_OPEN"
	MessageTypeRoomClosed MessageType = "ROOM_CLOSED"
)

// SystemIdentity is the identity-id of notices published by the service itself.
const SystemIdentity = "SYSTEM"

// Message is the envelope published to a room topic and returned by polls and
// the event log. MessageID is assigned by the topic on publish and is never
// part of the published payload.
type Message struct {
	// MessageID is the provider-assigned id, filled in on receive
	MessageID string `json:"message-id,omitempty"`

	// IdentityID is the authenticated author
	IdentityID string `json:"identity-id"`

	// AuthorName is the display name resolved for the author
	AuthorName string `json:"author-name"`

	// Message is the text body
	Message string `json:"message"`

	// Timestamp is the unix time the message was accepted
	Timestamp int64 `json:"timestamp"`

	// ClientMessageID lets senders deduplicate their own echo (at most 36 bytes)
	ClientMessageID string `json:"client-message-id,omitempty"`

	// Type is set on system notices only
	Type MessageType `json:"type,omitempty"`
}

// PostMessageRequest is the request body for posting a message
type PostMessageRequest struct {
	Version         string `json:"version"`
	Message         string `json:"message"`
	ClientMessageID string `json:"client-message-id,omitempty"`
}

// PostMessageResponse is the response after posting a message
type PostMessageResponse struct {
	MessageID string `json:"message-id"`
}

// PollResponse is the response for a session poll. ReceiptHandles is parallel
// to Messages and is what the client acknowledges.
type PollResponse struct {
	Messages       []Message `json:"messages"`
	ReceiptHandles []string  `json:"receipt-handles"`
}

// AcknowledgeRequest is the request body for acknowledging polled messages
type AcknowledgeRequest struct {
	ReceiptHandles []string `json:"receipt-handles"`
}

// LogPage is one page of a room's archived event log, newest first
type LogPage struct {
	Messages  []Message `json:"messages"`
	Truncated bool      `json:"truncated"`
	NextToken string    `json:"next-token,omitempty"`
}
