package models

import "time"

// Group represents a chat group.
type Group struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatorID int       `db:"creator_id" json:"creator_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GroupMember is a single membership row.
type GroupMember struct {
	GroupID int       `db:"group_id" json:"group_id"`
	UserID  int       `db:"user_id" json:"user_id"`
	AddedAt time.Time `db:"added_at" json:"added_at"`
}
