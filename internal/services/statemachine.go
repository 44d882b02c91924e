package services

import (
	"encoding/json"
	"fmt"

	"github.com/adi-253/webchat/backend/internal/models"
)

type aslState struct {
	Type        string       `json:"Type"`
	Comment     string       `json:"Comment,omitempty"`
	SecondsPath string       `json:"SecondsPath,omitempty"`
	Resource    string       `json:"Resource,omitempty"`
	Retry       []aslRetrier `json:"Retry,omitempty"`
	Choices     []aslChoice  `json:"Choices,omitempty"`
	Default     string       `json:"Default,omitempty"`
	Next        string       `json:"Next,omitempty"`
}

type aslRetrier struct {
	ErrorEquals     []string `json:"ErrorEquals"`
	IntervalSeconds int      `json:"IntervalSeconds"`
	MaxAttempts     int      `json:"MaxAttempts"`
	BackoffRate     float64  `json:"BackoffRate"`
}

type aslChoice struct {
	Variable     string `json:"Variable"`
	StringEquals string `json:"StringEquals"`
	Next         string `json:"Next"`
}

type aslMachine struct {
	Comment string              `json:"Comment"`
	StartAt string              `json:"StartAt"`
	States  map[string]aslState `json:"States"`
}

// StateMachineDefinition renders the room lifecycle state machine: wait for
// the state's wait-seconds, run one lifecycle tick in functionARN, and stop
// once the room is DELETED.
func StateMachineDefinition(functionARN string) (string, error) {
	if functionARN == "" {
		return "", fmt.Errorf("state machine needs the lifecycle function arn")
	}
	machine := aslMachine{
		Comment: "Closes and tears down a chat room once its duration has passed",
		StartAt: "WaitForTick",
		States: map[string]aslState{
			"WaitForTick": {
				Type:        "Wait",
				SecondsPath: "$.wait-seconds",
				Next:        "Tick",
			},
			"Tick": {
				Type:     "Task",
				Resource: functionARN,
				Retry: []aslRetrier{{
					ErrorEquals:     []string{"States.TaskFailed"},
					IntervalSeconds: 2,
					MaxAttempts:     3,
					BackoffRate:     2,
				}},
				Next: "IsDeleted",
			},
			"IsDeleted": {
				Type: "Choice",
				Choices: []aslChoice{{
					Variable:     "$.state",
					StringEquals: string(models.RoomDeleted),
					Next:         "Done",
				}},
				Default: "WaitForTick",
			},
			"Done": {Type: "Succeed"},
		},
	}
	out, err := json.MarshalIndent(machine, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
