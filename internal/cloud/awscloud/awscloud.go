// Package awscloud implements the cloud provider contracts on AWS: SNS topics,
// SQS queues, S3 objects, CloudWatch Logs groups, Step Functions and Cognito.
package awscloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// Providers bundles every AWS-backed provider built from one SDK config.
type Providers struct {
	Topics       *Topics
	Queues       *Queues
	Objects      *Objects
	LogGroups    *LogGroups
	Orchestrator *StateMachine
	Directory    *Directory
	Identity     *Identity
}

// Options selects the account-scoped resources the providers operate on.
type Options struct {
	Region          string
	Bucket          string
	StateMachineARN string
	UserPoolID      string
}

// Load builds the SDK config from the environment (the Lambda execution role
// in production) and wires every provider.
func Load(ctx context.Context, opts Options) (*Providers, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return New(cfg, opts), nil
}

// New wires every provider from an existing SDK config.
func New(cfg aws.Config, opts Options) *Providers {
	return &Providers{
		Topics:       &Topics{client: sns.NewFromConfig(cfg)},
		Queues:       &Queues{client: sqs.NewFromConfig(cfg)},
		Objects:      &Objects{client: s3.NewFromConfig(cfg), bucket: opts.Bucket},
		LogGroups:    &LogGroups{client: cloudwatchlogs.NewFromConfig(cfg)},
		Orchestrator: &StateMachine{client: sfn.NewFromConfig(cfg), arn: opts.StateMachineARN},
		Directory:    &Directory{client: cognitoidentityprovider.NewFromConfig(cfg), userPoolID: opts.UserPoolID},
		Identity:     &Identity{client: sts.NewFromConfig(cfg)},
	}
}

// Error codes returned by the services we call, mapped onto provider errors.
var errorCodes = map[string]error{
	// SNS
	"AuthorizationError": cloud.ErrUnauthorized,
	"InvalidParameter":   cloud.ErrInvalidParameter,
	"NotFound":           cloud.ErrNotFound,

	// SQS (query and JSON protocol spellings)
	"AWS.SimpleQueueService.NonExistentQueue": cloud.ErrNotFound,
	"QueueDoesNotExist":                       cloud.ErrNotFound,
	"ReceiptHandleIsInvalid":                  cloud.ErrInvalidParameter,
	"QueueAlreadyExists":                      cloud.ErrAlreadyExists,

	// S3
	"NoSuchKey":    cloud.ErrNotFound,
	"NoSuchBucket": cloud.ErrNotFound,
	"AccessDenied": cloud.ErrUnauthorized,

	// CloudWatch Logs and Step Functions
	"ResourceNotFoundException":      cloud.ErrNotFound,
	"ResourceAlreadyExistsException": cloud.ErrAlreadyExists,
	"ExecutionAlreadyExists":         cloud.ErrAlreadyExists,
	"StateMachineDoesNotExist":       cloud.ErrNotFound,

	// Cognito
	"UserNotFoundException": cloud.ErrNotFound,
}

// classify wraps err with the provider error matching its service error code,
// keeping the original error in the chain.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if sentinel, ok := errorCodes[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("%s: %w: %w", op, sentinel, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
