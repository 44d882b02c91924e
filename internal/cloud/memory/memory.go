// Package memory is an in-process implementation of the cloud provider
// contracts. It keeps the semantics the services depend on: topic fan-out to
// independent queue copies, long polling, visibility timeouts, receipt handle
// deletes, policy-gated subscription and idempotency errors on missing
// resources. The local server and the end-to-end tests run on it.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// Account and region are fixed so generated ARNs look like real ones.
	Account = "000000000000"
	Region  = "local"

	defaultVisibility = 30 * time.Second

	// lambdaAttempts is how often a failing "lambda" subscriber is invoked
	// for one notification before the delivery is given up.
	lambdaAttempts = 3
)

// Handler receives notifications for a "lambda" protocol subscription.
type Handler func(ctx context.Context, topicARN, messageID, message string, published time.Time) error

// Cloud implements cloud.Topics, cloud.Queues, cloud.Objects and cloud.LogGroups.
type Cloud struct {
	mu sync.Mutex

	now        func() time.Time
	visibility time.Duration
	log        logrus.FieldLogger
	seq        uint64

	topics     map[string]*topic // by ARN
	queues     map[string]*queue // by URL
	queueNames map[string]string // name -> URL
	objects    map[string]object
	logGroups  map[string][]string // group -> metric filter names
	handlers   map[string]Handler  // lambda endpoint -> handler

	// changed is closed and replaced whenever a message becomes receivable.
	changed chan struct{}
}

// Option configures a Cloud.
type Option func(*Cloud)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cloud) { c.now = now }
}

// WithVisibilityTimeout sets how long a received message stays hidden.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(c *Cloud) { c.visibility = d }
}

// WithLogger sets where failed subscriber deliveries are reported.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Cloud) { c.log = log }
}

// New creates an empty in-memory cloud.
func New(opts ...Option) *Cloud {
	c := &Cloud{
		now:        time.Now,
		visibility: defaultVisibility,
		log:        logrus.StandardLogger(),
		topics:     make(map[string]*topic),
		queues:     make(map[string]*queue),
		queueNames: make(map[string]string),
		objects:    make(map[string]object),
		logGroups:  make(map[string][]string),
		handlers:   make(map[string]Handler),
		changed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterHandler binds a "lambda" subscription endpoint to a Go function.
func (c *Cloud) RegisterHandler(endpoint string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[endpoint] = h
}

// nextID returns a unique id. Callers hold c.mu.
func (c *Cloud) nextID(kind string) string {
	c.seq++
	return fmt.Sprintf("%s-%08d", kind, c.seq)
}

// wake notifies every blocked receiver. Callers hold c.mu.
func (c *Cloud) wake() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func topicARN(name string) string {
	return fmt.Sprintf("arn:aws:sns:%s:%s:%s", Region, Account, name)
}

func queueARN(name string) string {
	return fmt.Sprintf("arn:aws:sqs:%s:%s:%s", Region, Account, name)
}

func queueURL(name string) string {
	return fmt.Sprintf("https://sqs.%s.localhost/%s/%s", Region, Account, name)
}
