package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/adi-253/webchat/backend/internal/cloud/memory"
	"github.com/adi-253/webchat/backend/internal/config"
	"github.com/adi-253/webchat/backend/internal/logging"
	"github.com/adi-253/webchat/backend/internal/models"
	"github.com/adi-253/webchat/backend/internal/records"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() *config.Config {
	return &config.Config{
		ProjectPrefix:    "web-chat",
		AWSRegion:        memory.Region,
		MetricNamespace:  "WebChat",
		AdminIdentityIDs: []string{"admin"},
		RoomDuration:     time.Hour,
		InflightWait:     15 * time.Second,
		PollWait:         0,
		PollBatchSize:    10,
		OrphanThreshold:  2 * time.Hour,
	}
}

type testEnv struct {
	cloud     *memory.Cloud
	clock     *testClock
	deps      Deps
	rooms     *RoomService
	sessions  *SessionService
	messages  *MessageService
	lifecycle *LifecycleService
	archive   *ArchiveService
}

func newTestEnv(t *testing.T, tweak ...func(*Deps)) *testEnv {
	t.Helper()
	c := memory.New()
	clock := &testClock{t: time.Unix(1700000000, 0)}
	deps := Deps{
		Topics:    c,
		Queues:    c,
		Objects:   c,
		LogGroups: c,
		Directory: memory.NewDirectory(),
		Records:   records.NewObjectStore(c),
		Cache:     NewCache(16, time.Minute),
		Config:    testConfig(),
		AccountID: memory.Account,
		Log:       logging.Discard(),
		Now:       clock.Now,
	}
	for _, f := range tweak {
		f(&deps)
	}

	env := &testEnv{cloud: c, clock: clock, deps: deps}
	env.rooms = NewRoomService(deps)
	env.sessions = NewSessionService(deps, env.rooms)
	env.messages = NewMessageService(deps, env.rooms, env.sessions)
	env.lifecycle = NewLifecycleService(deps, env.rooms, env.sessions)
	env.archive = NewArchiveService(deps)
	return env
}

func (e *testEnv) createRoom(t *testing.T) models.Room {
	t.Helper()
	room, err := e.rooms.CreateRoom(context.Background())
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	return room
}

func (e *testEnv) createSession(t *testing.T, roomID, owner string) models.Session {
	t.Helper()
	session, err := e.sessions.CreateSession(context.Background(), roomID, models.Identity{ID: owner})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return session
}

func (e *testEnv) poll(t *testing.T, roomID, sessionID string) models.PollResponse {
	t.Helper()
	resp, err := e.messages.PollMessages(context.Background(), roomID, sessionID)
	if err != nil {
		t.Fatalf("PollMessages() error = %v", err)
	}
	return resp
}

func assertClientError(t *testing.T, err error, status int, message string) {
	t.Helper()
	var ce *ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want a ClientError", err)
	}
	if ce.Status != status {
		t.Errorf("status = %d, want %d", ce.Status, status)
	}
	if message != "" && ce.Message != message {
		t.Errorf("message = %q, want %q", ce.Message, message)
	}
}

func TestPostPollAcknowledge(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t)
	session := env.createSession(t, room.ID, "alice")

	id, err := env.messages.PostMessage(ctx, room.ID, models.Identity{ID: "alice", Name: "Alice"},
		models.PostMessageRequest{Version: "1", Message: "hello", ClientMessageID: "abc"})
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}

	resp := env.poll(t, room.ID, session.ID)
	if len(resp.Messages) != 1 || len(resp.ReceiptHandles) != 1 {
		t.Fatalf("poll = %+v, want one message", resp)
	}
	got := resp.Messages[0]
	if got.Message != "hello" || got.MessageID != id || got.ClientMessageID != "abc" {
		t.Errorf("message = %+v", got)
	}
	if got.AuthorName != "Alice" || got.IdentityID != "alice" || got.Timestamp != 1700000000 {
		t.Errorf("author fields = %+v", got)
	}

	if err := env.messages.AcknowledgeMessages(ctx, room.ID, session.ID, resp.ReceiptHandles); err != nil {
		t.Fatalf("AcknowledgeMessages() error = %v", err)
	}
	if again := env.poll(t, room.ID, session.ID); len(again.Messages) != 0 {
		t.Fatalf("acknowledged message came back: %+v", again)
	}

	// Re-acknowledging a deleted handle is not an error.
	if err := env.messages.AcknowledgeMessages(ctx, room.ID, session.ID, resp.ReceiptHandles); err != nil {
		t.Fatalf("second AcknowledgeMessages() error = %v", err)
	}
}

func TestFanOutToEverySession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t)
	s1 := env.createSession(t, room.ID, "alice")
	s2 := env.createSession(t, room.ID, "bob")

	id, err := env.messages.PostMessage(ctx, room.ID, models.Identity{ID: "alice"}, models.PostMessageRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}

	for _, s := range []models.Session{s1, s2} {
		resp := env.poll(t, room.ID, s.ID)
		if len(resp.Messages) != 1 || resp.Messages[0].MessageID != id {
			t.Errorf("session %s got %+v", s.ID, resp.Messages)
		}
	}
}

func TestPostToUnknownRoom(t *testing.T) {
	env := newTestEnv(t)
	roomID := NewRoomID()

	_, err := env.messages.PostMessage(context.Background(), roomID, models.Identity{ID: "alice"}, models.PostMessageRequest{Message: "hi"})
	assertClientError(t, err, http.StatusBadRequest,
		`Room "`+roomID+`" either doesn't exist or you don't have access to it.`)
}

func TestCreateRoomProvisionsResources(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t)

	if !ValidRoomID(room.ID) {
		t.Fatalf("room id %q is not a uuid", room.ID)
	}
	if room.State != models.RoomOpen || room.Duration != 3600 {
		t.Errorf("room = %+v", room)
	}
	if !env.cloud.TopicExists(room.TopicARN) {
		t.Errorf("topic %s was not created", room.TopicARN)
	}
	if room.LogGroup == "" || !env.cloud.LogGroupExists(room.LogGroup) {
		t.Errorf("log group %q was not created", room.LogGroup)
	}

	got, err := env.rooms.RoomTopic(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("RoomTopic() error = %v", err)
	}
	if got.TopicARN != room.TopicARN {
		t.Errorf("RoomTopic() = %s, want %s", got.TopicARN, room.TopicARN)
	}
}

func TestRoomTopicNotFound(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"", "not-a-room", NewRoomID()} {
		if _, err := env.rooms.RoomTopic(context.Background(), id); !errors.Is(err, ErrRoomNotFound) {
			t.Errorf("RoomTopic(%q) error = %v, want ErrRoomNotFound", id, err)
		}
	}
}

func TestDeleteRoomTwice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t)

	for i := 0; i < 2; i++ {
		if err := env.rooms.DeleteRoom(ctx, room); err != nil {
			t.Fatalf("DeleteRoom() call %d error = %v", i+1, err)
		}
	}
	if env.cloud.TopicExists(room.TopicARN) || env.cloud.LogGroupExists(room.LogGroup) {
		t.Fatal("room resources survived DeleteRoom")
	}
	if _, err := env.rooms.RoomTopic(ctx, room.ID); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("RoomTopic() after delete error = %v", err)
	}
}

func TestCreateRoomStartsLifecycle(t *testing.T) {
	orch := &recordingOrchestrator{}
	env := newTestEnv(t, func(d *Deps) { d.Orchestrator = orch })
	room := env.createRoom(t)

	if len(orch.started) != 1 {
		t.Fatalf("started %d executions, want 1", len(orch.started))
	}
	got := orch.started[0]
	if got.ID != room.ID || got.State != models.RoomOpen || got.WaitSeconds != 3600 {
		t.Errorf("execution input = %+v", got)
	}
	if got.Config.TopicARN != room.TopicARN || got.Config.LogGroup != room.LogGroup {
		t.Errorf("execution config = %+v", got.Config)
	}
}

func TestCreateRoomTearsDownOnFailure(t *testing.T) {
	orch := &recordingOrchestrator{err: errors.New("throttled")}
	env := newTestEnv(t, func(d *Deps) { d.Orchestrator = orch })

	_, err := env.rooms.CreateRoom(context.Background())
	if err == nil {
		t.Fatal("CreateRoom() succeeded with a failing orchestrator")
	}
	if StatusOf(err) != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", StatusOf(err))
	}
	if keys := env.cloud.Keys("room-topics/"); len(keys) != 0 {
		t.Errorf("room records left behind: %v", keys)
	}
}

type recordingOrchestrator struct {
	started []models.LifecycleState
	err     error
}

func (o *recordingOrchestrator) StartRoomLifecycle(ctx context.Context, state models.LifecycleState) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	o.started = append(o.started, state)
	return "execution-" + state.ID, nil
}

func findEntry(hook *logtest.Hook, message string) *logrus.Entry {
	for _, e := range hook.AllEntries() {
		if e.Message == message {
			return e
		}
	}
	return nil
}

func TestServicesLogWithRequestLogger(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	env := newTestEnv(t, func(d *Deps) { d.Log = logger })

	room := env.createRoom(t)
	created := findEntry(hook, "Room created")
	if created == nil {
		t.Fatal("room creation was not logged")
	}
	if _, ok := created.Data["request_id"]; ok || created.Data["service"] != "room" {
		t.Errorf("background log fields = %v", created.Data)
	}

	hook.Reset()
	ctx := logging.WithContext(context.Background(), logger.WithField("request_id", "req-42"))
	if _, err := env.messages.PostMessage(ctx, room.ID, models.Identity{ID: "alice"}, models.PostMessageRequest{Message: "hi"}); err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	posted := findEntry(hook, "Message posted")
	if posted == nil {
		t.Fatal("post was not logged")
	}
	if posted.Data["request_id"] != "req-42" || posted.Data["service"] != "message" || posted.Data["room_id"] != room.ID {
		t.Errorf("post log fields = %v", posted.Data)
	}
}
