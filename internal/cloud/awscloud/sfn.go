package awscloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adi-253/webchat/backend/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
)

// ErrNoStateMachine is returned when no state machine ARN is configured.
var ErrNoStateMachine = errors.New("awscloud: room state machine is not configured")

// StateMachine starts room lifecycle executions on Step Functions.
type StateMachine struct {
	client *sfn.Client
	arn    string
}

// StartRoomLifecycle starts one execution per room, named after the room so a
// retried room creation cannot start a second lifecycle.
func (s *StateMachine) StartRoomLifecycle(ctx context.Context, state models.LifecycleState) (string, error) {
	if s.arn == "" {
		return "", ErrNoStateMachine
	}

	input, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to encode lifecycle input: %w", err)
	}

	out, err := s.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(s.arn),
		Name:            aws.String("room-" + state.ID),
		Input:           aws.String(string(input)),
	})
	if err != nil {
		return "", classify("sfn start execution", err)
	}
	return aws.ToString(out.ExecutionArn), nil
}
