package models

import "time"

// SenderType identifies who authored a transcript message.
type SenderType string

const (
	SenderUser    SenderType = "user"
	SenderChatbot SenderType = "chatbot"
)

// Message is one immutable turn of a conversation transcript. Seq is the
// storage insertion order and breaks timestamp ties when transcripts are
// replayed.
type Message struct {
	Seq            int64      `json:"-"`
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderType     SenderType `json:"sender_type"`
	Content        string     `json:"content"`
	Timestamp      time.Time  `json:"timestamp"`
}
