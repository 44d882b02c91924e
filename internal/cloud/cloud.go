// Package cloud defines the provider contracts the messaging services run on:
// pub/sub topics, durable queues, an object store, delivery log groups, the
// lifecycle orchestrator and the user directory.
package cloud

import (
	"context"
	"errors"
	"time"

	"github.com/adi-253/webchat/backend/internal/models"
)

// Provider errors. Adapters wrap them with %w so callers can use errors.Is.
var (
	ErrNotFound         = errors.New("cloud: resource not found")
	ErrUnauthorized     = errors.New("cloud: not authorized")
	ErrInvalidParameter = errors.New("cloud: invalid parameter")
	ErrAlreadyExists    = errors.New("cloud: resource already exists")
)

// Subscription protocols.
const (
	ProtocolSQS    = "sqs"
	ProtocolLambda = "lambda"
)

// Topics is the pub/sub provider. Publishing delivers an independent copy to
// every subscribed endpoint.
type Topics interface {
	CreateTopic(ctx context.Context, name string) (string, error)
	SetTopicAttribute(ctx context.Context, topicARN, name, value string) error
	Publish(ctx context.Context, topicARN, message string) (string, error)
	Subscribe(ctx context.Context, topicARN, protocol, endpoint string) (string, error)
	Unsubscribe(ctx context.Context, subscriptionARN string) error
	DeleteTopic(ctx context.Context, topicARN string) error
}

// Queues is the durable queue provider.
type Queues interface {
	CreateQueue(ctx context.Context, name string, attributes map[string]string) (string, error)
	QueueARN(ctx context.Context, queueURL string) (string, error)
	QueueURL(ctx context.Context, name string) (string, error)
	Receive(ctx context.Context, queueURL string, max int, wait time.Duration) ([]Delivery, error)
	DeleteBatch(ctx context.Context, queueURL string, entries []DeleteEntry) ([]BatchFailure, error)
	DeleteQueue(ctx context.Context, queueURL string) error
	ListQueues(ctx context.Context, prefix string) ([]string, error)
}

// Objects is the shared object store.
type Objects interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, in ListInput) (ListPage, error)
	Delete(ctx context.Context, key string) error
}

// LogGroups manages the per-room delivery status log group.
type LogGroups interface {
	CreateLogGroup(ctx context.Context, name string) error
	PutMetricFilter(ctx context.Context, group string, filter MetricFilter) error
	DeleteLogGroup(ctx context.Context, name string) error
}

// Orchestrator drives a room through its lifecycle ticks.
type Orchestrator interface {
	StartRoomLifecycle(ctx context.Context, state models.LifecycleState) (string, error)
}

// Directory resolves a display name for an authenticated identity.
type Directory interface {
	DisplayName(ctx context.Context, authProvider string) (string, error)
}

// Queue attribute names understood by CreateQueue.
const (
	QueueAttributePolicy            = "Policy"
	QueueAttributeVisibilityTimeout = "VisibilityTimeout"
)

// Topic attribute names understood by SetTopicAttribute.
const (
	TopicAttributePolicy          = "Policy"
	TopicAttributeSuccessFeedback = "SQSSuccessFeedbackRoleArn"
	TopicAttributeFailureFeedback = "SQSFailureFeedbackRoleArn"
)

// Notification is the envelope a topic wraps around each published message
// before it lands in a subscribed queue.
type Notification struct {
	Type      string    `json:"Type"`
	MessageID string    `json:"MessageId"`
	TopicARN  string    `json:"TopicArn"`
	Message   string    `json:"Message"`
	Timestamp time.Time `json:"Timestamp"`
}

// Delivery is one received queue message.
type Delivery struct {
	MessageID     string
	Body          string
	ReceiptHandle string
}

// DeleteEntry identifies one receipt handle within a delete batch.
type DeleteEntry struct {
	ID            string
	ReceiptHandle string
}

// BatchFailure reports a batch entry the provider did not delete.
type BatchFailure struct {
	ID      string
	Code    string
	Message string
}

// ListInput selects keys in lexicographic order.
type ListInput struct {
	Prefix            string
	StartAfter        string
	ContinuationToken string
	MaxKeys           int
}

// ListPage is one page of listed keys.
type ListPage struct {
	Keys      []string
	Truncated bool
	NextToken string
}

// MetricFilter turns matching log events into a metric.
type MetricFilter struct {
	Name        string
	Pattern     string
	MetricName  string
	Namespace   string
	MetricValue string
}

// IsGone reports whether err means the resource no longer exists or can no
// longer be touched by us, which idempotent deletes treat as success.
func IsGone(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized)
}
