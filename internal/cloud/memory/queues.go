package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/adi-253/webchat/backend/internal/policy"
)

// recheckInterval bounds how late a waiting receiver notices a message whose
// visibility timeout expired.
const recheckInterval = 50 * time.Millisecond

// maxVisibilitySeconds is the longest visibility timeout a queue accepts.
const maxVisibilitySeconds = 43200

type queue struct {
	name       string
	url        string
	arn        string
	attributes map[string]string
	messages   []*queued
}

type queued struct {
	messageID string
	body      string
	handle    string
	visibleAt time.Time
}

func (q *queue) acceptsFrom(topicARN string) bool {
	raw, ok := q.attributes[cloud.QueueAttributePolicy]
	if !ok {
		return true
	}
	doc, err := policy.Parse(raw)
	if err != nil {
		return false
	}
	return doc.SourceTopic() == topicARN
}

// visibilityTimeout reads the queue's VisibilityTimeout attribute, falling
// back to def when the queue was created without one.
func (q *queue) visibilityTimeout(def time.Duration) time.Duration {
	raw, ok := q.attributes[cloud.QueueAttributeVisibilityTimeout]
	if !ok {
		return def
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return time.Duration(secs) * time.Second
}

func (q *queue) enqueue(messageID, body string, now time.Time) {
	q.messages = append(q.messages, &queued{messageID: messageID, body: body, visibleAt: now})
}

// receive hides up to max visible messages for the visibility timeout and
// hands each a fresh receipt handle.
func (q *queue) receive(max int, now time.Time, visibility time.Duration, newHandle func() string) []cloud.Delivery {
	var out []cloud.Delivery
	for _, m := range q.messages {
		if len(out) == max {
			break
		}
		if m.visibleAt.After(now) {
			continue
		}
		m.handle = newHandle()
		m.visibleAt = now.Add(visibility)
		out = append(out, cloud.Delivery{MessageID: m.messageID, Body: m.body, ReceiptHandle: m.handle})
	}
	return out
}

func (q *queue) remove(handle string) bool {
	for i, m := range q.messages {
		if m.handle != "" && m.handle == handle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cloud) CreateQueue(ctx context.Context, name string, attributes map[string]string) (string, error) {
	if name == "" || len(name) > 80 {
		return "", fmt.Errorf("create queue %q: %w", name, cloud.ErrInvalidParameter)
	}
	if raw, ok := attributes[cloud.QueueAttributePolicy]; ok {
		if _, err := policy.Parse(raw); err != nil {
			return "", fmt.Errorf("create queue %s: %w: %w", name, cloud.ErrInvalidParameter, err)
		}
	}
	if raw, ok := attributes[cloud.QueueAttributeVisibilityTimeout]; ok {
		if secs, err := strconv.Atoi(raw); err != nil || secs < 0 || secs > maxVisibilitySeconds {
			return "", fmt.Errorf("create queue %s: visibility timeout %q: %w", name, raw, cloud.ErrInvalidParameter)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if url, ok := c.queueNames[name]; ok {
		return url, nil
	}
	attrs := make(map[string]string, len(attributes))
	for k, v := range attributes {
		attrs[k] = v
	}
	q := &queue{name: name, url: queueURL(name), arn: queueARN(name), attributes: attrs}
	c.queues[q.url] = q
	c.queueNames[name] = q.url
	return q.url, nil
}

func (c *Cloud) QueueARN(ctx context.Context, url string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[url]
	if !ok {
		return "", fmt.Errorf("queue arn %s: %w", url, cloud.ErrNotFound)
	}
	return q.arn, nil
}

func (c *Cloud) QueueURL(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	url, ok := c.queueNames[name]
	if !ok {
		return "", fmt.Errorf("queue url %s: %w", name, cloud.ErrNotFound)
	}
	return url, nil
}

// Receive returns as soon as at least one message is visible, or empty once
// wait has elapsed.
func (c *Cloud) Receive(ctx context.Context, url string, max int, wait time.Duration) ([]cloud.Delivery, error) {
	if max < 1 {
		max = 1
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	recheck := time.NewTicker(recheckInterval)
	defer recheck.Stop()

	for {
		c.mu.Lock()
		q, ok := c.queues[url]
		if !ok {
			c.mu.Unlock()
			return nil, fmt.Errorf("receive %s: %w", url, cloud.ErrNotFound)
		}
		got := q.receive(max, c.now(), q.visibilityTimeout(c.visibility), func() string { return c.nextID("handle") })
		changed := c.changed
		c.mu.Unlock()

		if len(got) > 0 || wait <= 0 {
			return got, nil
		}

		select {
		case <-changed:
		case <-recheck.C:
		case <-deadline.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Cloud) DeleteBatch(ctx context.Context, url string, entries []cloud.DeleteEntry) ([]cloud.BatchFailure, error) {
	if len(entries) == 0 || len(entries) > 10 {
		return nil, fmt.Errorf("delete batch of %d: %w", len(entries), cloud.ErrInvalidParameter)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[url]
	if !ok {
		return nil, fmt.Errorf("delete batch %s: %w", url, cloud.ErrNotFound)
	}

	var failures []cloud.BatchFailure
	for _, e := range entries {
		if !q.remove(e.ReceiptHandle) {
			failures = append(failures, cloud.BatchFailure{
				ID:      e.ID,
				Code:    "ReceiptHandleIsInvalid",
				Message: "The receipt handle is not valid for this queue.",
			})
		}
	}
	return failures, nil
}

func (c *Cloud) DeleteQueue(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[url]
	if !ok {
		return fmt.Errorf("delete queue %s: %w", url, cloud.ErrNotFound)
	}
	delete(c.queues, url)
	delete(c.queueNames, q.name)
	c.wake()
	return nil
}

func (c *Cloud) ListQueues(ctx context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var urls []string
	for name, url := range c.queueNames {
		if strings.HasPrefix(name, prefix) {
			urls = append(urls, url)
		}
	}
	sort.Strings(urls)
	return urls, nil
}

// Depth returns how many messages a queue holds, visible or not. Used by tests.
func (c *Cloud) Depth(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[url]
	if !ok {
		return 0
	}
	return len(q.messages)
}
