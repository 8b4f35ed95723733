package models

import "time"

// Conversation binds one user to one chatbot and roots a transcript.
// Created once per "start chat" and never mutated.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	ChatbotID string    `json:"chatbot_id"`
	CreatedAt time.Time `json:"created_at"`
}
