package models

// RoomState is the lifecycle state of a room. It only moves forward:
// OPEN -> DRAINING -> DELETED.
type RoomState string

const (
	// RoomOpen accepts new sessions and new posts
	RoomOpen RoomState = "OPEN"

	// RoomDraining rejects new sessions and posts while in-flight deliveries settle
	RoomDraining RoomState = "DRAINING"

	// RoomDeleted means every provider resource of the room is gone
	RoomDeleted RoomState = "DELETED"
)

// Valid reports whether s is one of the known states.
func (s RoomState) Valid() bool {
	switch s {
	case RoomOpen, RoomDraining, RoomDeleted:
		return true
	}
	return false
}

// Room represents a chat room backed by one pub/sub topic.
// The record is stored as room-topics/{id}.json in the shared bucket.
type Room struct {
	// ID is the UUIDv4 room identifier, used in every room URL
	ID string `json:"id"`

	// Created is the unix time the room was created
	Created int64 `json:"created"`

	// Duration is how many seconds the room stays open
	Duration int64 `json:"duration"`

	// TopicARN is the provider identifier of the room's topic
	TopicARN string `json:"sns-topic-arn"`

	// LogGroup receives the topic's delivery status logs
	LogGroup string `json:"log-group,omitempty"`

	// State is the last state recorded by the lifecycle controller
	State RoomState `json:"state"`
}

// Session is one participant's durable inbox: a queue subscribed to the room topic.
// The record is stored as room-queues/{room}/{id}.json in the shared bucket.
type Session struct {
	// ID is the z-base-32 session identifier
	ID string `json:"id"`

	// RoomID is the room this session receives messages from
	RoomID string `json:"room-id"`

	// Created is the unix time the session was created
	Created int64 `json:"created"`

	// OwnerID is the identity that created the session
	OwnerID string `json:"owner-identity-id"`

	QueueURL        string `json:"sqs-queue-url"`
	QueueARN        string `json:"sqs-queue-arn"`
	SubscriptionARN string `json:"sns-subscription-arn,omitempty"`
}

// CreateRoomResponse is the response after creating a room
type CreateRoomResponse struct {
	ID   string `json:"id"`
	Room string `json:"room"`
}

// CreateSessionResponse is the response after creating a session
type CreateSessionResponse struct {
	ID string `json:"id"`
}

// LifecycleConfig carries the provider resources the lifecycle controller tears down.
type LifecycleConfig struct {
	TopicARN string `json:"sns-topic-arn"`
	LogGroup string `json:"log-group"`
	Duration int64  `json:"duration"`
}

// LifecycleState is the payload passed between lifecycle ticks by the orchestrator.
// WaitSeconds tells the orchestrator how long to wait before the next tick.
type LifecycleState struct {
	ID          string          `json:"id"`
	Config      LifecycleConfig `json:"config"`
	State       RoomState       `json:"state"`
	WaitSeconds int64           `json:"wait-seconds"`
}
