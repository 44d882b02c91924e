package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/adi-253/webchat/backend/internal/policy"
	"github.com/sirupsen/logrus"
)

type topic struct {
	arn        string
	attributes map[string]string
	subs       []subscription
}

type subscription struct {
	arn      string
	protocol string
	endpoint string
}

// allows evaluates the topic policy. A topic without a policy is only usable by
// its owner, which in this process is everyone.
func (t *topic) allows(action string) bool {
	raw, ok := t.attributes[cloud.TopicAttributePolicy]
	if !ok {
		return true
	}
	doc, err := policy.Parse(raw)
	if err != nil {
		return false
	}
	return doc.Allows(action)
}

func (c *Cloud) CreateTopic(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("create topic: %w", cloud.ErrInvalidParameter)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	arn := topicARN(name)
	if _, ok := c.topics[arn]; !ok {
		c.topics[arn] = &topic{arn: arn, attributes: make(map[string]string)}
	}
	return arn, nil
}

func (c *Cloud) SetTopicAttribute(ctx context.Context, arn, name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.topics[arn]
	if !ok {
		return fmt.Errorf("set topic attribute %s: %w", arn, cloud.ErrNotFound)
	}
	if name == cloud.TopicAttributePolicy {
		if _, err := policy.Parse(value); err != nil {
			return fmt.Errorf("set topic attribute %s: %w: %w", arn, cloud.ErrInvalidParameter, err)
		}
	}
	t.attributes[name] = value
	return nil
}

func (c *Cloud) Subscribe(ctx context.Context, arn, protocol, endpoint string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.topics[arn]
	if !ok {
		return "", fmt.Errorf("subscribe %s: %w", arn, cloud.ErrNotFound)
	}
	if !t.allows("sns:Subscribe") {
		return "", fmt.Errorf("subscribe %s: %w", arn, cloud.ErrUnauthorized)
	}
	if protocol != cloud.ProtocolSQS && protocol != cloud.ProtocolLambda {
		return "", fmt.Errorf("subscribe %s: protocol %q: %w", arn, protocol, cloud.ErrInvalidParameter)
	}

	sub := subscription{
		arn:      arn + ":" + c.nextID("sub"),
		protocol: protocol,
		endpoint: endpoint,
	}
	t.subs = append(t.subs, sub)
	return sub.arn, nil
}

// Publish wraps the message in a notification and delivers a copy to every
// subscriber. Lambda subscribers run after the lock is released; their
// failures do not fail the publish.
func (c *Cloud) Publish(ctx context.Context, arn, message string) (string, error) {
	c.mu.Lock()

	t, ok := c.topics[arn]
	if !ok {
		c.mu.Unlock()
		return "", fmt.Errorf("publish %s: %w", arn, cloud.ErrNotFound)
	}
	if !t.allows("sns:Publish") {
		c.mu.Unlock()
		return "", fmt.Errorf("publish %s: %w", arn, cloud.ErrUnauthorized)
	}

	n := cloud.Notification{
		Type:      "Notification",
		MessageID: c.nextID("msg"),
		TopicARN:  arn,
		Message:   message,
		Timestamp: c.now().UTC(),
	}
	body, err := json.Marshal(n)
	if err != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("publish %s: %w", arn, err)
	}

	type call struct {
		h        Handler
		endpoint string
	}
	var calls []call
	delivered := false
	for _, sub := range t.subs {
		switch sub.protocol {
		case cloud.ProtocolSQS:
			q, ok := c.queueByARN(sub.endpoint)
			if !ok || !q.acceptsFrom(arn) {
				continue
			}
			q.enqueue(n.MessageID, string(body), c.now())
			delivered = true
		case cloud.ProtocolLambda:
			if h, ok := c.handlers[sub.endpoint]; ok {
				calls = append(calls, call{h: h, endpoint: sub.endpoint})
			}
		}
	}
	if delivered {
		c.wake()
	}
	c.mu.Unlock()

	for _, call := range calls {
		c.invoke(ctx, call.h, call.endpoint, n, message)
	}
	return n.MessageID, nil
}

// invoke delivers one notification to a "lambda" subscriber, retrying a
// failing handler. A delivery that never succeeds is logged and dropped.
func (c *Cloud) invoke(ctx context.Context, h Handler, endpoint string, n cloud.Notification, message string) {
	var err error
	for attempt := 1; attempt <= lambdaAttempts; attempt++ {
		if err = h(ctx, n.TopicARN, n.MessageID, message, n.Timestamp); err == nil {
			return
		}
	}
	c.log.WithFields(logrus.Fields{
		"topic_arn":  n.TopicARN,
		"message_id": n.MessageID,
		"endpoint":   endpoint,
		"attempts":   lambdaAttempts,
	}).WithError(err).Error("Subscriber delivery failed")
}

// Unsubscribe removes a subscription by the ARN Subscribe returned.
func (c *Cloud) Unsubscribe(ctx context.Context, subscriptionARN string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.topics {
		for i, sub := range t.subs {
			if sub.arn == subscriptionARN {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("unsubscribe %s: %w", subscriptionARN, cloud.ErrNotFound)
}

func (c *Cloud) DeleteTopic(ctx context.Context, arn string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.topics[arn]
	if !ok {
		return fmt.Errorf("delete topic %s: %w", arn, cloud.ErrNotFound)
	}
	if !t.allows("sns:DeleteTopic") {
		return fmt.Errorf("delete topic %s: %w", arn, cloud.ErrUnauthorized)
	}
	delete(c.topics, arn)
	return nil
}

// TopicExists reports whether the topic is still present. Used by tests.
func (c *Cloud) TopicExists(arn string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[arn]
	return ok
}

// Subscriptions counts the topic's subscriptions of one protocol. Used by tests.
func (c *Cloud) Subscriptions(arn, protocol string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.topics[arn]
	if !ok {
		return 0
	}
	n := 0
	for _, sub := range t.subs {
		if sub.protocol == protocol {
			n++
		}
	}
	return n
}

// TopicAttribute returns a topic attribute. Used by tests.
func (c *Cloud) TopicAttribute(arn, name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.topics[arn]
	if !ok {
		return "", false
	}
	v, ok := t.attributes[name]
	return v, ok
}

func (c *Cloud) queueByARN(arn string) (*queue, bool) {
	name := arn[strings.LastIndex(arn, ":")+1:]
	url, ok := c.queueNames[name]
	if !ok {
		return nil, false
	}
	q, ok := c.queues[url]
	return q, ok
}
