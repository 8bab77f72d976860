package models

import (
	"errors"
	"time"
)

// MediaType classifies an attachment.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// ErrInvalidTarget is returned when a message addresses both or neither of a
// receiver and a group.
var ErrInvalidTarget = errors.New("message must target exactly one of receiver or group")

// Message is a persisted direct or group message.
type Message struct {
	ID         int        `db:"id" json:"id"`
	SenderID   int        `db:"sender_id" json:"sender_id"`
	ReceiverID *int       `db:"receiver_id" json:"receiver_id,omitempty"`
	GroupID    *int       `db:"group_id" json:"group_id,omitempty"`
	Content    string     `db:"content" json:"content"`
	MediaURL   *string    `db:"media_url" json:"media_url,omitempty"`
	MediaType  *MediaType `db:"media_type" json:"media_type,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"timestamp"`
}

// NewMessage carries the fields the sender controls.
type NewMessage struct {
	SenderID   int
	ReceiverID *int
	GroupID    *int
	Content    string
	MediaURL   *string
	MediaType  *MediaType
}

// Validate checks that exactly one of ReceiverID and GroupID is set.
func (m NewMessage) Validate() error {
	if (m.ReceiverID == nil) == (m.GroupID == nil) {
		return ErrInvalidTarget
	}
	return nil
}

// IsGroup reports whether the message was sent to a group.
func (m Message) IsGroup() bool {
	return m.GroupID != nil
}

// Counterpart returns the other party of a direct message from userID's
// point of view.
func (m Message) Counterpart(userID int) int {
	if m.SenderID == userID && m.ReceiverID != nil {
		return *m.ReceiverID
	}
	return m.SenderID
}
