package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"personachat/internal/models"
)

const failureExcerptLimit = 50

// Turn is the pair of persisted messages produced by one exchange.
type Turn struct {
	UserMessage *models.Message `json:"user_message"`
	BotMessage  *models.Message `json:"bot_response"`
}

// HandleTurn runs one conversational exchange: it verifies ownership,
// re-reads the current chatbot definition, persists the user message,
// invokes the generator once, and persists either the reply or a fallback.
// A generation failure never surfaces as an error; the turn still
// completes with the fallback as the bot message. Only the ownership and
// existence checks (before any write) and a failed transcript write can
// fail the operation.
func (s *Service) HandleTurn(ctx context.Context, conversationID, userText string, callerID int64) (*Turn, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, errors.New("message text is required")
	}

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != callerID {
		return nil, ErrNotOwner
	}
	bot, err := s.bots.Get(ctx, conv.ChatbotID)
	if err != nil {
		// Conversation orphaned by a chatbot delete.
		return nil, err
	}
	systemPrompt := SystemPrompt(bot)

	// The user turn is written before any generation attempt; if this
	// write fails the turn is abandoned with no bot message.
	userMsg, err := s.appendMessage(ctx, conv.ID, models.SenderUser, userText)
	if err != nil {
		return nil, err
	}

	content, genErr := s.gen.Generate(ctx, systemPrompt, userText, conv.ID)
	if genErr != nil {
		log.Printf("[chat] generation failed for conversation=%s: %v", conv.ID, genErr)
		content = FallbackMessage(genErr)
	}

	botMsg, err := s.appendMessage(ctx, conv.ID, models.SenderChatbot, content)
	if err != nil {
		return nil, err
	}
	return &Turn{UserMessage: userMsg, BotMessage: botMsg}, nil
}

// FallbackMessage renders the deterministic bot reply substituted when
// generation fails. The failure reason is truncated so raw provider
// diagnostics never reach the transcript.
func FallbackMessage(cause error) string {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	// Truncate by runes so a multi-byte character at the limit is never
	// split into invalid UTF-8.
	if r := []rune(reason); len(r) > failureExcerptLimit {
		reason = string(r[:failureExcerptLimit])
	}
	return fmt.Sprintf("I'm sorry, I'm having trouble responding right now. Please try again later. (%s...)", reason)
}
