package observability

import (
	"context"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// Publisher is the event-bus dependency of Events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// Events publishes websocket lifecycle events. Publishing is best effort:
// errors are counted and returned, never retried.
type Events struct {
	publisher Publisher
	metrics   *Metrics
}

func NewEvents(publisher Publisher, metrics *Metrics) *Events {
	return &Events{publisher: publisher, metrics: metrics}
}

func (e *Events) Publish(ctx context.Context, routingKey string, envelope EventEnvelope, headers map[string]string) error {
	if e == nil || e.publisher == nil {
		return nil
	}
	err := e.publisher.Publish(ctx, routingKey, envelope, headers)
	if err != nil {
		e.metrics.IncAMQPPublishError()
	}
	return err
}
