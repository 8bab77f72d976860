package models

import "time"

// User is a chat participant. ExternalUID is the subject issued by the
// identity provider; ID is the internal, immutable key.
type User struct {
	ID          int       `db:"id" json:"id"`
	ExternalUID string    `db:"external_uid" json:"external_uid"`
	Email       string    `db:"email" json:"email"`
	DisplayName *string   `db:"display_name" json:"display_name,omitempty"`
	PublicKey   *string   `db:"public_key" json:"public_key,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Title is the label shown for the user in conversation lists.
func (u User) Title() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Email
}
