package models

import "time"

// UserSession is the decrypted view of a user's stored session
type UserSession struct {
	UserID     int64      `json:"user_id"`
	APIKey     string     `json:"-"`
	LastPrompt string     `json:"last_prompt,omitempty"`
	LinkedAt   *time.Time `json:"linked_at,omitempty"`
}

// HasCredential reports whether an API key is present
func (s *UserSession) HasCredential() bool {
	return s != nil && s.APIKey != ""
}

// SessionUpdate is a partial update; nil fields are left untouched
type SessionUpdate struct {
	APIKey     *string
	LastPrompt *string
	LinkedAt   *time.Time
}

// PendingFile is an uploaded file waiting for the user's processing-mode decision
type PendingFile struct {
	Data      []byte    `json:"data"`
	Prompt    string    `json:"prompt"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}
