// Package policy builds the resource access policies attached to room topics
// and session queues.
package policy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Policy language versions used by the two resource types.
const (
	TopicVersion = "2008-10-17"
	QueueVersion = "2012-10-17"
)

// Document is a resource policy.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement grants Action on Resource to Principal.
type Statement struct {
	Sid       string                       `json:"Sid,omitempty"`
	Effect    string                       `json:"Effect"`
	Principal Principal                    `json:"Principal"`
	Action    Actions                      `json:"Action"`
	Resource  string                       `json:"Resource"`
	Condition map[string]map[string]string `json:"Condition,omitempty"`
}

// Principal is either an AWS principal ARN or the wildcard "*".
type Principal struct {
	AWS      string
	Wildcard bool
}

// Anyone is the wildcard principal.
var Anyone = Principal{Wildcard: true}

// Role returns the principal for an IAM role ARN.
func Role(arn string) Principal { return Principal{AWS: arn} }

func (p Principal) MarshalJSON() ([]byte, error) {
	if p.Wildcard {
		return json.Marshal("*")
	}
	return json.Marshal(struct {
		AWS string `json:"AWS"`
	}{p.AWS})
}

func (p *Principal) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "*" {
			return fmt.Errorf("unsupported principal %q", s)
		}
		*p = Anyone
		return nil
	}
	var obj struct {
		AWS string `json:"AWS"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("failed to decode principal: %w", err)
	}
	*p = Principal{AWS: obj.AWS}
	return nil
}

// Actions serializes as a bare string when it holds a single action.
type Actions []string

func (a Actions) MarshalJSON() ([]byte, error) {
	if len(a) == 1 {
		return json.Marshal(a[0])
	}
	return json.Marshal([]string(a))
}

func (a *Actions) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Actions{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to decode actions: %w", err)
	}
	*a = list
	return nil
}

// String renders the document as the JSON the provider expects.
func (d Document) String() string {
	b, err := json.Marshal(d)
	if err != nil {
		// Every field is a string or a map of strings.
		panic(err)
	}
	return string(b)
}

// Parse decodes a policy document.
func Parse(doc string) (Document, error) {
	var d Document
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return Document{}, fmt.Errorf("failed to parse policy: %w", err)
	}
	return d, nil
}

// Allows reports whether any Allow statement grants action to some principal.
func (d Document) Allows(action string) bool {
	for _, st := range d.Statement {
		if st.Effect != "Allow" {
			continue
		}
		for _, a := range st.Action {
			if strings.EqualFold(a, action) {
				return true
			}
		}
	}
	return false
}

// TopicRoles are the principals named in room topic policies.
type TopicRoles struct {
	Subscribe string
	Publish   string
	Delete    string
	Lifecycle string
}

// OpenTopicPolicy lets sessions subscribe and posters publish to an open room.
func OpenTopicPolicy(topicARN string, roles TopicRoles) Document {
	return Document{
		Version: TopicVersion,
		Statement: []Statement{
			{
				Sid:       "AllowSubscriptionFromRoomSessionGenerator",
				Effect:    "Allow",
				Principal: Role(roles.Subscribe),
				Action:    Actions{"sns:Subscribe"},
				Resource:  topicARN,
			},
			{
				Sid:       "AllowPublishingByRoomMessagePoster",
				Effect:    "Allow",
				Principal: Role(roles.Publish),
				Action:    Actions{"sns:Publish"},
				Resource:  topicARN,
			},
			{
				Sid:       "AllowCleanup",
				Effect:    "Allow",
				Principal: Role(roles.Delete),
				Action:    Actions{"sns:DeleteTopic"},
				Resource:  topicARN,
			},
		},
	}
}

// ClosedTopicPolicy removes the subscribe and user publish grants. Only the
// lifecycle controller may still publish the closing notice and tear down.
func ClosedTopicPolicy(topicARN string, roles TopicRoles) Document {
	return Document{
		Version: TopicVersion,
		Statement: []Statement{
			{
				Sid:       "AllowRoomLifecycleActions",
				Effect:    "Allow",
				Principal: Role(roles.Lifecycle),
				Action: Actions{
					"sns:DeleteTopic",
					"sns:GetTopicAttributes",
					"sns:ListSubscriptionsByTopic",
					"sns:Publish",
					"sns:SetTopicAttributes",
				},
				Resource: topicARN,
			},
			{
				Sid:       "AllowCleanupByStackCleanup",
				Effect:    "Allow",
				Principal: Role(roles.Delete),
				Action:    Actions{"sns:DeleteTopic"},
				Resource:  topicARN,
			},
		},
	}
}

// QueueRoles are the principals named in session queue policies.
type QueueRoles struct {
	Creator      string
	Acknowledger string
	Poller       string
	Lifecycle    string
	Cleanup      string
}

// QueuePolicy accepts deliveries from exactly one topic and grants each
// function role only the queue actions it needs.
func QueuePolicy(topicARN string, roles QueueRoles) Document {
	return Document{
		Version: QueueVersion,
		Statement: []Statement{
			{
				Sid:       "AllowDeletionIfSubscriptionFails",
				Effect:    "Allow",
				Principal: Role(roles.Creator),
				Action:    Actions{"sqs:DeleteQueue"},
				Resource:  "*",
			},
			{
				Sid:       "AllowSNSRoomTopicSending",
				Effect:    "Allow",
				Principal: Anyone,
				Action:    Actions{"sqs:SendMessage"},
				Resource:  "*",
				Condition: map[string]map[string]string{
					"ArnEquals": {"aws:SourceArn": topicARN},
				},
			},
			{
				Sid:       "AllowRoomAcknowledgerActions",
				Effect:    "Allow",
				Principal: Role(roles.Acknowledger),
				Action:    Actions{"sqs:GetQueueUrl", "sqs:DeleteMessage"},
				Resource:  "*",
			},
			{
				Sid:       "AllowRoomPollerActions",
				Effect:    "Allow",
				Principal: Role(roles.Poller),
				Action:    Actions{"sqs:GetQueueUrl", "sqs:ReceiveMessage"},
				Resource:  "*",
			},
			{
				Sid:       "AllowRoomLifecycleActions",
				Effect:    "Allow",
				Principal: Role(roles.Lifecycle),
				Action:    Actions{"sqs:DeleteQueue"},
				Resource:  "*",
			},
			{
				Sid:       "AllowCleanup",
				Effect:    "Allow",
				Principal: Role(roles.Cleanup),
				Action:    Actions{"sqs:DeleteQueue"},
				Resource:  "*",
			},
		},
	}
}

// SourceTopic returns the topic a queue policy accepts deliveries from.
func (d Document) SourceTopic() string {
	for _, st := range d.Statement {
		if arn, ok := st.Condition["ArnEquals"]["aws:SourceArn"]; ok {
			return arn
		}
	}
	return ""
}
