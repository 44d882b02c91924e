package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/adi-253/webchat/backend/internal/gateway"
	"github.com/adi-253/webchat/backend/internal/logging"
	"github.com/adi-253/webchat/backend/internal/services"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/sirupsen/logrus"
)

// warmingEvent is what the pre-warming schedule invokes every function with.
type warmingEvent struct {
	Warming bool `json:"warming"`
}

// WarmedResponse answers a warming invocation.
type WarmedResponse struct {
	Message string `json:"message"`
}

// Warmable wraps a typed Lambda handler so warming invocations return
// immediately without decoding the event or touching any provider.
func Warmable[T, R any](h func(context.Context, T) (R, error)) func(context.Context, json.RawMessage) (any, error) {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var w warmingEvent
		if json.Unmarshal(payload, &w) == nil && w.Warming {
			return WarmedResponse{Message: "Warmed!"}, nil
		}
		var event T
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		return h(ctx, event)
	}
}

// HandleProxy serves an API Gateway proxy integration event.
func (a *API) HandleProxy(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := gateway.FromProxyRequest(ev)
	if err != nil {
		return gateway.ProxyResponse(req, http.StatusBadRequest, gateway.ErrorBody{Message: "Unable to read request body."}), nil
	}
	for _, route := range a.Routes() {
		if route.Method == ev.HTTPMethod && route.Resource == ev.Resource {
			status, body := a.Serve(ctx, route.Operation, req)
			return gateway.ProxyResponse(req, status, body), nil
		}
	}
	return gateway.ProxyResponse(req, http.StatusNotFound, gateway.ErrorBody{Message: "Not found."}), nil
}

// ArchiveHandler stores every message delivered to the archiver subscription.
// A failed write fails the invocation so the topic redelivers; writes are
// idempotent.
func ArchiveHandler(archive *services.ArchiveService, log logrus.FieldLogger) func(context.Context, events.SNSEvent) (any, error) {
	return func(ctx context.Context, ev events.SNSEvent) (any, error) {
		base := log
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			base = log.WithField("request_id", lc.AwsRequestID)
		}
		for _, record := range ev.Records {
			sns := record.SNS
			rlog := base.WithFields(logrus.Fields{"topic_arn": sns.TopicArn, "message_id": sns.MessageID})
			if err := archive.ArchiveDelivery(logging.WithContext(ctx, rlog), sns.TopicArn, sns.MessageID, sns.Message, sns.Timestamp); err != nil {
				rlog.WithError(err).Error("Failed to archive message")
				return nil, err
			}
		}
		return nil, nil
	}
}

// SweepResult reports what a scheduled sweep did.
type SweepResult struct {
	Deleted int `json:"deleted"`
}

// SweepHandler runs one orphaned session sweep per scheduled event.
func SweepHandler(cleanup *services.CleanupService) func(context.Context, events.CloudWatchEvent) (SweepResult, error) {
	return func(ctx context.Context, _ events.CloudWatchEvent) (SweepResult, error) {
		n, err := cleanup.RunOnce(ctx)
		return SweepResult{Deleted: n}, err
	}
}
