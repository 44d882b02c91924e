package awscloud

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Topics is the SNS implementation of cloud.Topics.
type Topics struct {
	client *sns.Client
}

// CreateTopic creates (or returns the existing) topic with the given name.
func (t *Topics) CreateTopic(ctx context.Context, name string) (string, error) {
	out, err := t.client.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(name)})
	if err != nil {
		return "", classify("sns create topic", err)
	}
	return aws.ToString(out.TopicArn), nil
}

func (t *Topics) SetTopicAttribute(ctx context.Context, topicARN, name, value string) error {
	_, err := t.client.SetTopicAttributes(ctx, &sns.SetTopicAttributesInput{
		TopicArn:       aws.String(topicARN),
		AttributeName:  aws.String(name),
		AttributeValue: aws.String(value),
	})
	return classify("sns set topic attributes", err)
}

// Publish returns the message id SNS assigned.
func (t *Topics) Publish(ctx context.Context, topicARN, message string) (string, error) {
	out, err := t.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicARN),
		Message:  aws.String(message),
	})
	if err != nil {
		return "", classify("sns publish", err)
	}
	return aws.ToString(out.MessageId), nil
}

func (t *Topics) Subscribe(ctx context.Context, topicARN, protocol, endpoint string) (string, error) {
	out, err := t.client.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn:              aws.String(topicARN),
		Protocol:              aws.String(protocol),
		Endpoint:              aws.String(endpoint),
		ReturnSubscriptionArn: true,
	})
	if err != nil {
		return "", classify("sns subscribe", err)
	}
	return aws.ToString(out.SubscriptionArn), nil
}

func (t *Topics) Unsubscribe(ctx context.Context, subscriptionARN string) error {
	_, err := t.client.Unsubscribe(ctx, &sns.UnsubscribeInput{SubscriptionArn: aws.String(subscriptionARN)})
	return classify("sns unsubscribe", err)
}

func (t *Topics) DeleteTopic(ctx context.Context, topicARN string) error {
	_, err := t.client.DeleteTopic(ctx, &sns.DeleteTopicInput{TopicArn: aws.String(topicARN)})
	return classify("sns delete topic", err)
}
