package services

import (
	"encoding/base32"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// zbase32 is the human-oriented base32 alphabet session ids are written in.
var zbase32 = base32.NewEncoding("ybndrfg8ejkmcpqxot1uwisza345h769").WithPadding(base32.NoPadding)

const (
	sessionIDLength = 26 // 16 random bytes in z-base-32
	archivePrefix   = "room-event-logs/"
)

// NewRoomID returns a random UUIDv4 string.
func NewRoomID() string {
	return uuid.NewString()
}

// NewSessionID returns 128 random bits in z-base-32.
func NewSessionID() string {
	id := uuid.New()
	return zbase32.EncodeToString(id[:])
}

// ValidRoomID reports whether id has the room id shape. Ids are checked before
// they are used in resource names or object keys.
func ValidRoomID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// ValidSessionID reports whether id has the session id shape.
func ValidSessionID(id string) bool {
	if len(id) != sessionIDLength {
		return false
	}
	_, err := zbase32.DecodeString(id)
	return err == nil
}

// Naming derives provider resource names from room and session ids.
type Naming struct {
	Prefix  string
	Region  string
	Account string
}

// TopicName is "<prefix>-<room>".
func (n Naming) TopicName(roomID string) string {
	return n.Prefix + "-" + roomID
}

// QueuePrefix is the name prefix shared by every session queue of a room.
func (n Naming) QueuePrefix(roomID string) string {
	return n.Prefix + "-" + strings.ReplaceAll(roomID, "-", "") + "-"
}

// QueueName is "<prefix>-<room without dashes>-<session>", which stays within
// the 80 character queue name limit for prefixes up to 20 characters.
func (n Naming) QueueName(roomID, sessionID string) string {
	return n.QueuePrefix(roomID) + strings.ReplaceAll(sessionID, "-", "")
}

// LogGroupName is the group SNS writes delivery status logs of the room topic to.
func (n Naming) LogGroupName(roomID string) string {
	return fmt.Sprintf("sns/%s/%s/%s", n.Region, n.Account, n.TopicName(roomID))
}

// RoomIDFromTopicARN recovers the room id from a room topic ARN.
func (n Naming) RoomIDFromTopicARN(topicARN string) (string, error) {
	parts := strings.Split(topicARN, ":")
	if len(parts) < 6 {
		return "", fmt.Errorf("malformed topic arn %q", topicARN)
	}
	roomID, ok := strings.CutPrefix(parts[5], n.Prefix+"-")
	if !ok || !ValidRoomID(roomID) {
		return "", fmt.Errorf("topic %q is not a room topic", topicARN)
	}
	return roomID, nil
}

// ReverseTimestamp maps a unix timestamp to a 10 digit string whose
// lexicographic order is the reverse of chronological order.
func ReverseTimestamp(ts int64) string {
	digits := []byte(fmt.Sprintf("%010d", ts))
	for i, d := range digits {
		digits[i] = '9' - (d - '0')
	}
	return string(digits)
}

// archiveRoomPrefix is the key prefix of a room's newest-first event log.
func archiveRoomPrefix(roomID string) string {
	return archivePrefix + roomID + "/reverse/"
}

// ArchiveKey is "room-event-logs/<room>/reverse/<reverse ts>-<ts>-<message id>".
func ArchiveKey(roomID string, ts int64, messageID string) string {
	return fmt.Sprintf("%s%s-%d-%s", archiveRoomPrefix(roomID), ReverseTimestamp(ts), ts, messageID)
}

// parseArchiveKey recovers the timestamp and message id from an archive key.
func parseArchiveKey(key string) (ts int64, messageID string, ok bool) {
	name := key[strings.LastIndex(key, "/")+1:]
	parts := strings.SplitN(name, "-", 3)
	if len(parts) != 3 || parts[2] == "" {
		return 0, "", false
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	// Keys written by other tools may carry a .json extension.
	messageID, _ = strings.CutSuffix(parts[2], ".json")
	return ts, messageID, true
}
