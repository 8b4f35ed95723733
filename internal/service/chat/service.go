package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"personachat/internal/models"
	"personachat/internal/service/chatbot"
)

var (
	// ErrConversationNotFound is returned when the conversation does not exist.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrNotOwner is returned when the caller does not own the conversation.
	ErrNotOwner = errors.New("not the conversation owner")
)

// StorageError wraps a failed transcript write so callers can tell a
// persistence failure apart from a generation failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Generator is the boundary to the external text-generation provider.
// sessionKey scopes any provider-side conversational memory; Forget
// releases that memory when the session's conversation is deleted.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, text, sessionKey string) (string, error)
	Forget(sessionKey string)
}

// Service owns conversation lifecycle, the transcript log, and turn
// orchestration.
type Service struct {
	db   *sql.DB
	bots *chatbot.Service
	gen  Generator
}

// NewService builds the chat service.
func NewService(db *sql.DB, bots *chatbot.Service, gen Generator) *Service {
	return &Service{db: db, bots: bots, gen: gen}
}

// ForgetSessions drops the generator's session memory for conversations
// that no longer exist, typically after a chatbot cascade delete.
func (s *Service) ForgetSessions(conversationIDs ...string) {
	for _, id := range conversationIDs {
		s.gen.Forget(id)
	}
}

// StartConversation creates a conversation between the user and chatbot.
func (s *Service) StartConversation(ctx context.Context, userID int64, chatbotID string) (*models.Conversation, error) {
	if _, err := s.bots.Get(ctx, chatbotID); err != nil {
		return nil, err
	}
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChatbotID: chatbotID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, chatbot_id, created_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.ChatbotID, conv.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation fetches a conversation by id.
func (s *Service) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, chatbot_id, created_at FROM conversations WHERE id = ?`, id,
	)
	var conv models.Conversation
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.ChatbotID, &conv.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, newest first.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, chatbot_id, created_at FROM conversations WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.ChatbotID, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// ListMessages returns the conversation transcript ordered by timestamp
// ascending, insertion order breaking ties. The caller must own the
// conversation.
func (s *Service) ListMessages(ctx context.Context, conversationID string, callerID int64) ([]models.Message, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != callerID {
		return nil, ErrNotOwner
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, conversation_id, sender_type, content, timestamp
		 FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC, seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.SenderType, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// appendMessage durably stores one transcript message. The timestamp is
// taken at persistence time.
func (s *Service) appendMessage(ctx context.Context, conversationID string, sender models.SenderType, content string) (*models.Message, error) {
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderType:     sender,
		Content:        content,
		Timestamp:      time.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_type, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.SenderType, msg.Content, msg.Timestamp,
	)
	if err != nil {
		return nil, &StorageError{Op: "append message", Err: err}
	}
	if seq, err := res.LastInsertId(); err == nil {
		msg.Seq = seq
	}
	return msg, nil
}
