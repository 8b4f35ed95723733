package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"personachat/internal/config"
)

const (
	defaultTimeout = 60 * time.Second
	// historyLimit caps how many prior turns are replayed to the provider
	// per session.
	historyLimit = 20
)

// GenerationError uniformly wraps any provider-side failure: timeouts,
// transport errors, and malformed responses all look the same to callers.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// Gateway adapts an eino chat model to the orchestrator's generate
// contract. Session memory is kept per session key so one conversation's
// context never leaks into another.
type Gateway struct {
	chatModel model.ToolCallingChatModel
	timeout   time.Duration

	mu        sync.RWMutex
	histories map[string][]*schema.Message
}

// NewGateway builds the gateway for the configured provider.
func NewGateway(ctx context.Context, cfg config.ProviderConfig) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("provider api key is required")
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch cfg.Name {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: cfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s chat model: %w", cfg.Name, err)
	}

	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Gateway{
		chatModel: chatModel,
		timeout:   timeout,
		histories: make(map[string][]*schema.Message),
	}, nil
}

// Generate runs one provider call. The call is detached from the caller's
// cancellation so a client disconnect cannot abort an in-flight turn, but
// it always runs under the configured timeout.
func (g *Gateway) Generate(ctx context.Context, systemPrompt, text, sessionKey string) (string, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	messages := make([]*schema.Message, 0, historyLimit+2)
	messages = append(messages, &schema.Message{Role: schema.System, Content: systemPrompt})
	messages = append(messages, g.history(sessionKey)...)
	userMsg := &schema.Message{Role: schema.User, Content: text}
	messages = append(messages, userMsg)

	resp, err := g.chatModel.Generate(callCtx, messages)
	if err != nil {
		return "", &GenerationError{Cause: err}
	}
	if resp == nil || resp.Content == "" {
		return "", &GenerationError{Cause: errors.New("empty provider response")}
	}

	g.appendHistory(sessionKey, userMsg, &schema.Message{Role: schema.Assistant, Content: resp.Content})
	return resp.Content, nil
}

// Forget drops the cached session memory for a session key.
func (g *Gateway) Forget(sessionKey string) {
	g.mu.Lock()
	delete(g.histories, sessionKey)
	g.mu.Unlock()
}

func (g *Gateway) history(sessionKey string) []*schema.Message {
	g.mu.RLock()
	defer g.mu.RUnlock()

	history := g.histories[sessionKey]
	cloned := make([]*schema.Message, len(history))
	copy(cloned, history)
	return cloned
}

// appendHistory records a completed turn, evicting the oldest entries so
// a session never holds more than historyLimit messages.
func (g *Gateway) appendHistory(sessionKey string, msgs ...*schema.Message) {
	g.mu.Lock()
	history := append(g.histories[sessionKey], msgs...)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	g.histories[sessionKey] = history
	g.mu.Unlock()
}
