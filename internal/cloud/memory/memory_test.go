package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/adi-253/webchat/backend/internal/models"
	"github.com/adi-253/webchat/backend/internal/policy"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func newQueue(t *testing.T, c *Cloud, name, topic string) (url, arn string) {
	t.Helper()
	ctx := context.Background()
	attrs := map[string]string{
		cloud.QueueAttributePolicy: policy.QueuePolicy(topic, policy.QueueRoles{}).String(),
	}
	url, err := c.CreateQueue(ctx, name, attrs)
	if err != nil {
		t.Fatalf("CreateQueue() error = %v", err)
	}
	arn, err = c.QueueARN(ctx, url)
	if err != nil {
		t.Fatalf("QueueARN() error = %v", err)
	}
	if _, err := c.Subscribe(ctx, topic, cloud.ProtocolSQS, arn); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	return url, arn
}

func TestPublishFansOutIndependentCopies(t *testing.T) {
	ctx := context.Background()
	c := New()

	topic, _ := c.CreateTopic(ctx, "web-chat-room")
	q1, _ := newQueue(t, c, "web-chat-room-s1", topic)
	q2, _ := newQueue(t, c, "web-chat-room-s2", topic)

	id, err := c.Publish(ctx, topic, `{"message":"hi"}`)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for _, q := range []string{q1, q2} {
		got, err := c.Receive(ctx, q, 10, 0)
		if err != nil {
			t.Fatalf("Receive(%s) error = %v", q, err)
		}
		if len(got) != 1 {
			t.Fatalf("Receive(%s) = %d messages, want 1", q, len(got))
		}
		var n cloud.Notification
		if err := json.Unmarshal([]byte(got[0].Body), &n); err != nil {
			t.Fatalf("body is not a notification: %v", err)
		}
		if n.MessageID != id || n.Message != `{"message":"hi"}` || n.TopicARN != topic {
			t.Errorf("notification = %+v", n)
		}
	}

	// Acknowledging in one session must not affect the other.
	got, _ := c.Receive(ctx, q1, 10, 0)
	if len(got) != 0 {
		t.Fatalf("received message stayed visible")
	}
	if c.Depth(q1) != 1 || c.Depth(q2) != 1 {
		t.Fatalf("depths = %d/%d, want 1/1", c.Depth(q1), c.Depth(q2))
	}
}

func TestQueueIgnoresOtherTopics(t *testing.T) {
	ctx := context.Background()
	c := New()
	roomA, _ := c.CreateTopic(ctx, "a")
	roomB, _ := c.CreateTopic(ctx, "b")

	url, arn := newQueue(t, c, "qa", roomA)
	// Subscribing the queue to B does not let B's messages through its policy.
	if _, err := c.Subscribe(ctx, roomB, cloud.ProtocolSQS, arn); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Publish(ctx, roomB, "x"); err != nil {
		t.Fatal(err)
	}
	if c.Depth(url) != 0 {
		t.Fatalf("depth = %d, want 0", c.Depth(url))
	}
}

func TestVisibilityTimeoutAndDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	c := New(WithClock(clock), WithVisibilityTimeout(30*time.Second))

	topic, _ := c.CreateTopic(ctx, "t")
	url, _ := newQueue(t, c, "q", topic)
	c.Publish(ctx, topic, "one")

	first, _ := c.Receive(ctx, url, 10, 0)
	if len(first) != 1 {
		t.Fatalf("first receive = %d", len(first))
	}

	mu.Lock()
	now = now.Add(31 * time.Second)
	mu.Unlock()

	second, _ := c.Receive(ctx, url, 10, 0)
	if len(second) != 1 || second[0].ReceiptHandle == first[0].ReceiptHandle {
		t.Fatalf("unacknowledged message was not redelivered with a new handle")
	}

	failures, err := c.DeleteBatch(ctx, url, []cloud.DeleteEntry{
		{ID: "0", ReceiptHandle: first[0].ReceiptHandle},
		{ID: "1", ReceiptHandle: second[0].ReceiptHandle},
	})
	if err != nil {
		t.Fatalf("DeleteBatch() error = %v", err)
	}
	if len(failures) != 1 || failures[0].ID != "0" {
		t.Fatalf("failures = %+v, want only the stale handle", failures)
	}
	if c.Depth(url) != 0 {
		t.Fatalf("depth = %d, want 0", c.Depth(url))
	}
}

func TestReceiveLongPoll(t *testing.T) {
	ctx := context.Background()
	c := New()
	topic, _ := c.CreateTopic(ctx, "t")
	url, _ := newQueue(t, c, "q", topic)

	t.Run("empty queue waits the full window", func(t *testing.T) {
		start := time.Now()
		got, err := c.Receive(ctx, url, 10, 100*time.Millisecond)
		if err != nil || len(got) != 0 {
			t.Fatalf("Receive() = %v, %v", got, err)
		}
		if time.Since(start) < 100*time.Millisecond {
			t.Fatal("returned before the wait window elapsed")
		}
	})

	t.Run("publish wakes a waiting receiver", func(t *testing.T) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			c.Publish(ctx, topic, "late")
		}()
		got, err := c.Receive(ctx, url, 10, 5*time.Second)
		if err != nil || len(got) != 1 {
			t.Fatalf("Receive() = %v, %v", got, err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := c.Receive(cctx, url, 10, time.Second); !errors.Is(err, context.Canceled) {
			t.Fatalf("Receive() error = %v, want context.Canceled", err)
		}
	})
}

func TestClosedPolicyRejectsSubscribe(t *testing.T) {
	ctx := context.Background()
	c := New()
	topic, _ := c.CreateTopic(ctx, "t")
	closed := policy.ClosedTopicPolicy(topic, policy.TopicRoles{Lifecycle: "l", Delete: "d"})
	if err := c.SetTopicAttribute(ctx, topic, cloud.TopicAttributePolicy, closed.String()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Subscribe(ctx, topic, cloud.ProtocolSQS, "arn"); !errors.Is(err, cloud.ErrUnauthorized) {
		t.Fatalf("Subscribe() error = %v, want ErrUnauthorized", err)
	}
}

func TestMissingResources(t *testing.T) {
	ctx := context.Background()
	c := New()

	if err := c.DeleteTopic(ctx, topicARN("nope")); !errors.Is(err, cloud.ErrNotFound) {
		t.Errorf("DeleteTopic() error = %v", err)
	}
	if err := c.DeleteQueue(ctx, queueURL("nope")); !errors.Is(err, cloud.ErrNotFound) {
		t.Errorf("DeleteQueue() error = %v", err)
	}
	if _, err := c.Receive(ctx, queueURL("nope"), 1, 0); !errors.Is(err, cloud.ErrNotFound) {
		t.Errorf("Receive() error = %v", err)
	}
	if err := c.DeleteLogGroup(ctx, "nope"); !errors.Is(err, cloud.ErrNotFound) {
		t.Errorf("DeleteLogGroup() error = %v", err)
	}
	if _, err := c.Get(ctx, "nope"); !errors.Is(err, cloud.ErrNotFound) {
		t.Errorf("Get() error = %v", err)
	}
	if err := c.Delete(ctx, "nope"); err != nil {
		t.Errorf("Delete() error = %v, want nil", err)
	}
}

func TestListPaging(t *testing.T) {
	ctx := context.Background()
	c := New()
	for _, k := range []string{"p/3", "p/1", "p/2", "p/4", "q/1"} {
		c.Put(ctx, k, []byte(k), "text/plain")
	}

	page, _ := c.List(ctx, cloud.ListInput{Prefix: "p/", StartAfter: "p/1", MaxKeys: 2})
	if len(page.Keys) != 2 || page.Keys[0] != "p/2" || page.Keys[1] != "p/3" || !page.Truncated {
		t.Fatalf("first page = %+v", page)
	}
	page, _ = c.List(ctx, cloud.ListInput{Prefix: "p/", ContinuationToken: page.NextToken, MaxKeys: 2})
	if len(page.Keys) != 1 || page.Keys[0] != "p/4" || page.Truncated {
		t.Fatalf("second page = %+v", page)
	}
}

func TestLambdaSubscription(t *testing.T) {
	ctx := context.Background()
	c := New()
	topic, _ := c.CreateTopic(ctx, "t")

	var got []string
	c.RegisterHandler("archiver", func(ctx context.Context, topicARN, messageID, message string, published time.Time) error {
		got = append(got, message)
		return nil
	})
	if _, err := c.Subscribe(ctx, topic, cloud.ProtocolLambda, "archiver"); err != nil {
		t.Fatal(err)
	}
	c.Publish(ctx, topic, "hello")

	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("handler got %v", got)
	}
}

func TestOrchestratorRunsUntilDeleted(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	o := NewOrchestrator(logger)
	o.RetryDelay = time.Millisecond
	defer o.Stop()

	var mu sync.Mutex
	var seen []models.RoomState
	done := make(chan struct{})
	failOnce := true

	o.Bind(func(ctx context.Context, s models.LifecycleState) (models.LifecycleState, error) {
		mu.Lock()
		defer mu.Unlock()
		if failOnce {
			failOnce = false
			return s, errors.New("transient")
		}
		seen = append(seen, s.State)
		switch s.State {
		case models.RoomOpen:
			s.State = models.RoomDraining
		default:
			s.State = models.RoomDeleted
			close(done)
		}
		s.WaitSeconds = 0
		return s, nil
	})

	if _, err := o.StartRoomLifecycle(context.Background(), models.LifecycleState{ID: "r", State: models.RoomOpen}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != models.RoomOpen || seen[1] != models.RoomDraining {
		t.Fatalf("ticks = %v", seen)
	}
}

func TestLambdaSubscriberFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("retried until it succeeds", func(t *testing.T) {
		logger, hook := logtest.NewNullLogger()
		c := New(WithLogger(logger))
		topic, _ := c.CreateTopic(ctx, "t")

		calls := 0
		c.RegisterHandler("archiver", func(context.Context, string, string, string, time.Time) error {
			calls++
			if calls == 1 {
				return errors.New("throttled")
			}
			return nil
		})
		c.Subscribe(ctx, topic, cloud.ProtocolLambda, "archiver")

		if _, err := c.Publish(ctx, topic, "hello"); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if calls != 2 {
			t.Errorf("handler calls = %d, want 2", calls)
		}
		if len(hook.AllEntries()) != 0 {
			t.Errorf("recovered delivery was logged: %v", hook.LastEntry())
		}
	})

	t.Run("reported when it keeps failing", func(t *testing.T) {
		logger, hook := logtest.NewNullLogger()
		c := New(WithLogger(logger))
		topic, _ := c.CreateTopic(ctx, "t")

		calls := 0
		c.RegisterHandler("archiver", func(context.Context, string, string, string, time.Time) error {
			calls++
			return errors.New("archive write failed")
		})
		c.Subscribe(ctx, topic, cloud.ProtocolLambda, "archiver")

		id, err := c.Publish(ctx, topic, "hello")
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if calls != lambdaAttempts {
			t.Errorf("handler calls = %d, want %d", calls, lambdaAttempts)
		}
		entry := hook.LastEntry()
		if entry == nil || entry.Level != logrus.ErrorLevel {
			t.Fatalf("failed delivery was not logged: %v", hook.AllEntries())
		}
		if entry.Data["topic_arn"] != topic || entry.Data["message_id"] != id || entry.Data["endpoint"] != "archiver" {
			t.Errorf("log fields = %v", entry.Data)
		}
		if err, _ := entry.Data[logrus.ErrorKey].(error); err == nil || err.Error() != "archive write failed" {
			t.Errorf("logged error = %v", entry.Data[logrus.ErrorKey])
		}
	})
}

func TestQueueVisibilityTimeoutAttribute(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	c := New(WithClock(clock), WithVisibilityTimeout(time.Hour))
	topic, _ := c.CreateTopic(ctx, "t")

	url, err := c.CreateQueue(ctx, "q", map[string]string{
		cloud.QueueAttributePolicy:            policy.QueuePolicy(topic, policy.QueueRoles{}).String(),
		cloud.QueueAttributeVisibilityTimeout: "5",
	})
	if err != nil {
		t.Fatalf("CreateQueue() error = %v", err)
	}
	arn, _ := c.QueueARN(ctx, url)
	c.Subscribe(ctx, topic, cloud.ProtocolSQS, arn)
	c.Publish(ctx, topic, "one")

	if got, _ := c.Receive(ctx, url, 10, 0); len(got) != 1 {
		t.Fatalf("first receive = %d messages", len(got))
	}
	mu.Lock()
	now = now.Add(4 * time.Second)
	mu.Unlock()
	if got, _ := c.Receive(ctx, url, 10, 0); len(got) != 0 {
		t.Fatal("message visible before the queue's timeout")
	}
	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()
	if got, _ := c.Receive(ctx, url, 10, 0); len(got) != 1 {
		t.Fatal("queue's timeout was not applied; message still hidden")
	}

	if _, err := c.CreateQueue(ctx, "bad", map[string]string{cloud.QueueAttributeVisibilityTimeout: "soon"}); !errors.Is(err, cloud.ErrInvalidParameter) {
		t.Errorf("CreateQueue() with bad timeout error = %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	c := New()
	topic, _ := c.CreateTopic(ctx, "t")
	url, arn := newQueue(t, c, "q", topic)

	subs, _ := c.Subscribe(ctx, topic, cloud.ProtocolSQS, arn)
	if n := c.Subscriptions(topic, cloud.ProtocolSQS); n != 2 {
		t.Fatalf("subscriptions = %d, want 2", n)
	}
	if err := c.Unsubscribe(ctx, subs); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if err := c.Unsubscribe(ctx, subs); !errors.Is(err, cloud.ErrNotFound) {
		t.Errorf("second Unsubscribe() error = %v, want ErrNotFound", err)
	}

	c.Publish(ctx, topic, "one")
	if c.Depth(url) != 1 {
		t.Errorf("depth = %d, want one copy from the remaining subscription", c.Depth(url))
	}
}
