package services

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		if !ValidSessionID(id) {
			t.Fatalf("NewSessionID() = %q is not valid", id)
		}
		if seen[id] {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = true
	}

	if !ValidRoomID(NewRoomID()) {
		t.Error("NewRoomID() is not valid")
	}
	for _, bad := range []string{"", "abc", "../../etc", strings.Repeat("y", 25), strings.Repeat("l", 26)} {
		if ValidSessionID(bad) {
			t.Errorf("ValidSessionID(%q) = true", bad)
		}
	}
	if ValidRoomID("{6ba7b810-9dad-11d1-80b4-00c04fd430c8}") {
		t.Error("ValidRoomID accepted a braced uuid")
	}
}

func TestReverseTimestamp(t *testing.T) {
	if got := ReverseTimestamp(1234567890); got != "8765432109" {
		t.Errorf("ReverseTimestamp(1234567890) = %s", got)
	}
	if got := ReverseTimestamp(0); got != "9999999999" {
		t.Errorf("ReverseTimestamp(0) = %s", got)
	}

	samples := []int64{0, 1, 9, 10, 99, 100, 1699999999, 1700000000, 1700000001, 9999999999}
	for i := 1; i < len(samples); i++ {
		older, newer := ReverseTimestamp(samples[i-1]), ReverseTimestamp(samples[i])
		if !(older > newer) {
			t.Errorf("reverse(%d)=%s is not after reverse(%d)=%s", samples[i-1], older, samples[i], newer)
		}
	}
}

func TestArchiveKey(t *testing.T) {
	roomID := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	key := ArchiveKey(roomID, 1700000000, "msg-00000001")
	want := "room-event-logs/" + roomID + "/reverse/8299999999-1700000000-msg-00000001"
	if key != want {
		t.Fatalf("ArchiveKey() = %s, want %s", key, want)
	}

	ts, id, ok := parseArchiveKey(key)
	if !ok || ts != 1700000000 || id != "msg-00000001" {
		t.Errorf("parseArchiveKey() = %d, %q, %v", ts, id, ok)
	}
	if _, id, ok := parseArchiveKey(key + ".json"); !ok || id != "msg-00000001" {
		t.Errorf("parseArchiveKey(.json) = %q, %v", id, ok)
	}
	if _, _, ok := parseArchiveKey("room-event-logs/x/reverse/garbage"); ok {
		t.Error("parseArchiveKey accepted a malformed key")
	}
}

func TestNaming(t *testing.T) {
	n := Naming{Prefix: "web-chat", Region: "us-east-1", Account: "123456789012"}
	roomID := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	sessionID := NewSessionID()

	if got := n.TopicName(roomID); got != "web-chat-"+roomID {
		t.Errorf("TopicName() = %s", got)
	}
	queue := n.QueueName(roomID, sessionID)
	if !strings.HasPrefix(queue, n.QueuePrefix(roomID)) || strings.Count(queue, "-") != 3 {
		t.Errorf("QueueName() = %s", queue)
	}
	// A 20 character prefix must still fit the 80 character limit.
	if len(queue)-len(n.Prefix) > 60 {
		t.Errorf("queue name %s is too long", queue)
	}
	if got := n.LogGroupName(roomID); got != "sns/us-east-1/123456789012/web-chat-"+roomID {
		t.Errorf("LogGroupName() = %s", got)
	}

	arn := "arn:aws:sns:us-east-1:123456789012:web-chat-" + roomID
	if got, err := n.RoomIDFromTopicARN(arn); err != nil || got != roomID {
		t.Errorf("RoomIDFromTopicARN() = %s, %v", got, err)
	}
	for _, bad := range []string{"", "arn:aws:sns:us-east-1:123456789012:other-" + roomID, "arn:aws:sns:x:y:web-chat-nope"} {
		if _, err := n.RoomIDFromTopicARN(bad); err == nil {
			t.Errorf("RoomIDFromTopicARN(%q) succeeded", bad)
		}
	}
}

func TestStateMachineDefinition(t *testing.T) {
	doc, err := StateMachineDefinition("arn:aws:lambda:us-east-1:123456789012:function:lifecycle")
	if err != nil {
		t.Fatal(err)
	}

	var machine aslMachine
	if err := json.Unmarshal([]byte(doc), &machine); err != nil {
		t.Fatalf("definition is not JSON: %v", err)
	}
	if machine.StartAt != "WaitForTick" {
		t.Errorf("StartAt = %s", machine.StartAt)
	}
	wait := machine.States["WaitForTick"]
	if wait.Type != "Wait" || wait.SecondsPath != "$.wait-seconds" || wait.Next != "Tick" {
		t.Errorf("WaitForTick = %+v", wait)
	}
	tick := machine.States["Tick"]
	if tick.Resource == "" || len(tick.Retry) != 1 || tick.Next != "IsDeleted" {
		t.Errorf("Tick = %+v", tick)
	}
	choice := machine.States["IsDeleted"]
	if len(choice.Choices) != 1 || choice.Choices[0].StringEquals != "DELETED" || choice.Default != "WaitForTick" {
		t.Errorf("IsDeleted = %+v", choice)
	}
	if _, err := StateMachineDefinition(""); err == nil {
		t.Error("StateMachineDefinition() accepted an empty function arn")
	}
}
