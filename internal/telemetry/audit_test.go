package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/jishnu70/Chat-app-backend/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.chat", "chat-backend", "test", zap.NewNop())

	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(event any) bool {
		env, ok := event.(AuditEnvelope)
		return ok && env.EventType == "audit_log" && env.Service == "chat-backend" &&
			env.UserID != nil && *env.UserID == "4" && env.Payload.Text == "Group created"
	}), map[string]string{"x-request-id": "req-1"}).Return(nil).Once()

	userID := 4
	emitter.Emit(context.Background(), "INFO", "Group created", "req-1", &userID)
	publisher.AssertExpectations(t)
}

func TestEmitPublishErrorIsSwallowed(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.chat", "chat-backend", "test", zap.NewNop())
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "ERROR", "boom", "req", nil)
	})
	publisher.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "x", "req", nil)
	})
}
