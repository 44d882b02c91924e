package awscloud

import (
	"context"
	"time"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Queues is the SQS implementation of cloud.Queues.
type Queues struct {
	client *sqs.Client
}

func (q *Queues) CreateQueue(ctx context.Context, name string, attributes map[string]string) (string, error) {
	out, err := q.client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  aws.String(name),
		Attributes: attributes,
	})
	if err != nil {
		return "", classify("sqs create queue", err)
	}
	return aws.ToString(out.QueueUrl), nil
}

// QueueARN reads the queue's ARN, which SNS needs as the subscription endpoint.
func (q *Queues) QueueARN(ctx context.Context, queueURL string) (string, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", classify("sqs get queue attributes", err)
	}
	return out.Attributes[string(types.QueueAttributeNameQueueArn)], nil
}

func (q *Queues) QueueURL(ctx context.Context, name string) (string, error) {
	out, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return "", classify("sqs get queue url", err)
	}
	return aws.ToString(out.QueueUrl), nil
}

// Receive long-polls for up to max messages. SQS caps max at 10 and wait at 20s.
func (q *Queues) Receive(ctx context.Context, queueURL string, max int, wait time.Duration) ([]cloud.Delivery, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(wait / time.Second),
	})
	if err != nil {
		return nil, classify("sqs receive message", err)
	}

	deliveries := make([]cloud.Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		deliveries = append(deliveries, cloud.Delivery{
			MessageID:     aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}
	return deliveries, nil
}

// DeleteBatch deletes at most 10 receipt handles. Per-entry failures are
// returned, not treated as an error.
func (q *Queues) DeleteBatch(ctx context.Context, queueURL string, entries []cloud.DeleteEntry) ([]cloud.BatchFailure, error) {
	req := make([]types.DeleteMessageBatchRequestEntry, 0, len(entries))
	for _, e := range entries {
		req = append(req, types.DeleteMessageBatchRequestEntry{
			Id:            aws.String(e.ID),
			ReceiptHandle: aws.String(e.ReceiptHandle),
		})
	}

	out, err := q.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: aws.String(queueURL),
		Entries:  req,
	})
	if err != nil {
		return nil, classify("sqs delete message batch", err)
	}

	var failures []cloud.BatchFailure
	for _, f := range out.Failed {
		failures = append(failures, cloud.BatchFailure{
			ID:      aws.ToString(f.Id),
			Code:    aws.ToString(f.Code),
			Message: aws.ToString(f.Message),
		})
	}
	return failures, nil
}

func (q *Queues) DeleteQueue(ctx context.Context, queueURL string) error {
	_, err := q.client.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(queueURL)})
	return classify("sqs delete queue", err)
}

// ListQueues returns every queue URL with the given name prefix. The listing is
// eventually consistent, so callers repeat it until it settles.
func (q *Queues) ListQueues(ctx context.Context, prefix string) ([]string, error) {
	var urls []string
	paginator := sqs.NewListQueuesPaginator(q.client, &sqs.ListQueuesInput{
		QueueNamePrefix: aws.String(prefix),
		MaxResults:      aws.Int32(1000),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("sqs list queues", err)
		}
		urls = append(urls, page.QueueUrls...)
	}
	return urls, nil
}
