package awscloud

import (
	"context"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

// LogGroups is the CloudWatch Logs implementation of cloud.LogGroups.
type LogGroups struct {
	client *cloudwatchlogs.Client
}

func (l *LogGroups) CreateLogGroup(ctx context.Context, name string) error {
	_, err := l.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(name),
	})
	return classify("logs create log group", err)
}

func (l *LogGroups) PutMetricFilter(ctx context.Context, group string, filter cloud.MetricFilter) error {
	_, err := l.client.PutMetricFilter(ctx, &cloudwatchlogs.PutMetricFilterInput{
		LogGroupName:  aws.String(group),
		FilterName:    aws.String(filter.Name),
		FilterPattern: aws.String(filter.Pattern),
		MetricTransformations: []types.MetricTransformation{
			{
				MetricName:      aws.String(filter.MetricName),
				MetricNamespace: aws.String(filter.Namespace),
				MetricValue:     aws.String(filter.MetricValue),
			},
		},
	})
	return classify("logs put metric filter", err)
}

func (l *LogGroups) DeleteLogGroup(ctx context.Context, name string) error {
	_, err := l.client.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{
		LogGroupName: aws.String(name),
	})
	return classify("logs delete log group", err)
}
