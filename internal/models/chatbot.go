package models

import "time"

// Chatbot is a user-authored persona definition. IsCensored selects the
// content-policy clause appended to the system prompt.
type Chatbot struct {
	ID              string    `json:"id"`
	UserID          int64     `json:"user_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Introduction    string    `json:"introduction"`
	IsCensored      bool      `json:"is_censored"`
	CreatorUsername string    `json:"creator_username"`
	CreatedAt       time.Time `json:"created_at"`
}
