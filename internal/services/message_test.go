package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/adi-253/webchat/backend/internal/cloud/memory"
	"github.com/adi-253/webchat/backend/internal/models"
)

func TestValidatePost(t *testing.T) {
	tests := []struct {
		name    string
		req     models.PostMessageRequest
		wantErr string
	}{
		{"default version", models.PostMessageRequest{Message: "hi"}, ""},
		{"version 1", models.PostMessageRequest{Version: "1"}, ""},
		{"version 2", models.PostMessageRequest{Version: "2"}, "Unsupported message version: 2"},
		{"36 byte token", models.PostMessageRequest{ClientMessageID: strings.Repeat("x", 36)}, ""},
		{"37 byte token", models.PostMessageRequest{ClientMessageID: strings.Repeat("x", 37)},
			`Parameter "client-message-id" must be 36 bytes or fewer.`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePost(tt.req)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidatePost() error = %v", err)
				}
				return
			}
			assertClientError(t, err, http.StatusBadRequest, tt.wantErr)
		})
	}
}

func TestPostValidatesBeforeLookup(t *testing.T) {
	env := newTestEnv(t)
	// The room doesn't exist; the version error must win.
	_, err := env.messages.PostMessage(context.Background(), NewRoomID(), models.Identity{ID: "alice"},
		models.PostMessageRequest{Version: "3"})
	assertClientError(t, err, http.StatusBadRequest, "Unsupported message version: 3")
}

func TestPostAfterRoomCloses(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t)

	if err := env.rooms.MarkDraining(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	_, err := env.messages.PostMessage(ctx, room.ID, models.Identity{ID: "alice"}, models.PostMessageRequest{Message: "late"})
	assertClientError(t, err, http.StatusBadRequest, "")
}

func TestAuthorNameResolution(t *testing.T) {
	ctx := context.Background()
	dir := memory.NewDirectory()
	dir.Set("cognito:alice", "alice@example.com")
	env := newTestEnv(t, func(d *Deps) { d.Directory = dir })
	room := env.createRoom(t)
	s := env.createSession(t, room.ID, "bob")

	callers := []models.Identity{
		{ID: "alice", AuthProvider: "cognito:alice"},
		{ID: "carol", AuthProvider: "cognito:carol"},
		{ID: "dave", Name: "Dave"},
	}
	for _, caller := range callers {
		if _, err := env.messages.PostMessage(ctx, room.ID, caller, models.PostMessageRequest{Message: "hi"}); err != nil {
			t.Fatalf("PostMessage(%s) error = %v", caller.ID, err)
		}
	}

	names := make(map[string]string)
	for _, m := range env.poll(t, room.ID, s.ID).Messages {
		names[m.IdentityID] = m.AuthorName
	}
	want := map[string]string{"alice": "alice@example.com", "carol": "carol", "dave": "Dave"}
	for id, name := range want {
		if names[id] != name {
			t.Errorf("author name of %s = %q, want %q", id, names[id], name)
		}
	}
}

func TestAcknowledgeRejectsEmptyList(t *testing.T) {
	env := newTestEnv(t)
	err := env.messages.AcknowledgeMessages(context.Background(), NewRoomID(), NewSessionID(), nil)
	assertClientError(t, err, http.StatusBadRequest,
		`Value for "receipt-handles" must be an array including at least one string.`)
}

// batchQueues records DeleteBatch calls and fails the entries listed in fail.
type batchQueues struct {
	cloud.Queues
	batches    [][]cloud.DeleteEntry
	fail       map[string]bool
	deliveries []cloud.Delivery
}

func (q *batchQueues) QueueURL(ctx context.Context, name string) (string, error) {
	return "https://queue.local/" + name, nil
}

func (q *batchQueues) Receive(ctx context.Context, url string, max int, wait time.Duration) ([]cloud.Delivery, error) {
	return q.deliveries, nil
}

func (q *batchQueues) DeleteBatch(ctx context.Context, url string, entries []cloud.DeleteEntry) ([]cloud.BatchFailure, error) {
	if len(entries) > deleteBatchSize {
		return nil, errors.New("too many entries")
	}
	q.batches = append(q.batches, entries)
	var failures []cloud.BatchFailure
	for _, e := range entries {
		if q.fail[e.ReceiptHandle] {
			failures = append(failures, cloud.BatchFailure{ID: e.ID, Code: "ReceiptHandleIsInvalid"})
		}
	}
	return failures, nil
}

func TestAcknowledgeBatches(t *testing.T) {
	queues := &batchQueues{fail: map[string]bool{"h3": true, "h12": true}}
	env := newTestEnv(t, func(d *Deps) { d.Queues = queues })

	handles := make([]string, 23)
	for i := range handles {
		handles[i] = fmt.Sprintf("h%d", i)
	}

	if err := env.messages.AcknowledgeMessages(context.Background(), NewRoomID(), NewSessionID(), handles); err != nil {
		t.Fatalf("AcknowledgeMessages() error = %v", err)
	}

	if len(queues.batches) != 3 {
		t.Fatalf("%d batch calls, want 3", len(queues.batches))
	}
	sizes := []int{len(queues.batches[0]), len(queues.batches[1]), len(queues.batches[2])}
	if sizes[0] != 10 || sizes[1] != 10 || sizes[2] != 3 {
		t.Errorf("batch sizes = %v, want [10 10 3]", sizes)
	}
	if last := queues.batches[2][2]; last.ID != "22" || last.ReceiptHandle != handles[22] {
		t.Errorf("last entry = %+v", last)
	}
}

func TestPollDropsUndecodableDeliveries(t *testing.T) {
	good := `{"Type":"Notification","MessageId":"m-1","TopicArn":"arn","Message":"{\"identity-id\":\"alice\",\"message\":\"hi\",\"timestamp\":5}"}`
	queues := &batchQueues{deliveries: []cloud.Delivery{
		{MessageID: "d-0", Body: "not json", ReceiptHandle: "bad"},
		{MessageID: "d-1", Body: good, ReceiptHandle: "good"},
	}}
	env := newTestEnv(t, func(d *Deps) { d.Queues = queues })

	resp, err := env.messages.PollMessages(context.Background(), NewRoomID(), NewSessionID())
	if err != nil {
		t.Fatalf("PollMessages() error = %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].MessageID != "m-1" || resp.Messages[0].Message != "hi" {
		t.Fatalf("messages = %+v", resp.Messages)
	}
	if len(resp.ReceiptHandles) != 1 || resp.ReceiptHandles[0] != "good" {
		t.Errorf("receipt handles = %v", resp.ReceiptHandles)
	}
	if len(queues.batches) != 1 || queues.batches[0][0].ReceiptHandle != "bad" {
		t.Errorf("poison delivery was not deleted: %+v", queues.batches)
	}
}

func TestPollEmptyQueue(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t)
	s := env.createSession(t, room.ID, "alice")

	resp := env.poll(t, room.ID, s.ID)
	if resp.Messages == nil || resp.ReceiptHandles == nil {
		t.Fatal("empty poll must return empty lists, not null")
	}
	if len(resp.Messages) != 0 {
		t.Errorf("messages = %+v", resp.Messages)
	}
}
