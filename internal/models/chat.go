package models

import "time"

// ChatSummary is one entry of a user's conversation list.
type ChatSummary struct {
	ChatID      int        `json:"chat_id"`
	Title       string     `json:"title"`
	LastMessage string     `json:"last_message"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	IsGroup     bool       `json:"is_group"`
}
