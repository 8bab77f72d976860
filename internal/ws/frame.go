package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jishnu70/Chat-app-backend/internal/models"
)

// Application close codes sent after the upgrade when a session is refused.
const (
	CloseUnauthorized = 4401
	CloseForbidden    = 4403
	CloseNotFound     = 4404
)

var ErrInvalidPayload = errors.New("invalid payload")

var validate = validator.New()

// InboundFrame is the client message payload.
type InboundFrame struct {
	Content   string  `json:"content" validate:"required"`
	MediaURL  *string `json:"media_url,omitempty" validate:"omitempty,max=255"`
	MediaType *string `json:"media_type,omitempty" validate:"omitempty,oneof=image video"`
}

// DecodeFrame parses and validates one inbound text frame. Content is trimmed
// and must not be empty. media_url and media_type come together or not at all.
func DecodeFrame(raw []byte) (InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	frame.Content = strings.TrimSpace(frame.Content)
	if err := validate.Struct(frame); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if frame.MediaURL != nil && strings.TrimSpace(*frame.MediaURL) == "" {
		return InboundFrame{}, fmt.Errorf("%w: empty media_url", ErrInvalidPayload)
	}
	if (frame.MediaURL == nil) != (frame.MediaType == nil) {
		return InboundFrame{}, fmt.Errorf("%w: media_url and media_type must be set together", ErrInvalidPayload)
	}
	return frame, nil
}

// NewMessage builds the persistence request for a frame sent by senderID.
// Exactly one of receiverID and groupID is expected to be set.
func (f InboundFrame) NewMessage(senderID int, receiverID, groupID *int) models.NewMessage {
	msg := models.NewMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		GroupID:    groupID,
		Content:    f.Content,
		MediaURL:   f.MediaURL,
	}
	if f.MediaType != nil {
		mt := models.MediaType(*f.MediaType)
		msg.MediaType = &mt
	}
	return msg
}

type errorNotice struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

var invalidPayloadNotice, _ = json.Marshal(errorNotice{Type: "error", Error: ErrInvalidPayload.Error()})
