package chatbot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"personachat/internal/models"
)

var (
	// ErrNotFound is returned when the chatbot does not exist.
	ErrNotFound = errors.New("chatbot not found")
	// ErrNotOwner is returned when a caller modifies a chatbot they do not own.
	ErrNotOwner = errors.New("not the chatbot owner")
)

// Service owns chatbot persona records.
type Service struct {
	db *sql.DB
}

// NewService builds a chatbot service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// CreateParams carries the fields of a new chatbot definition.
type CreateParams struct {
	Name         string
	Description  string
	Introduction string
	IsCensored   bool
}

// UpdateParams carries a partial update; nil fields are left untouched.
type UpdateParams struct {
	Name         *string
	Description  *string
	Introduction *string
	IsCensored   *bool
}

// Create inserts a chatbot owned by the given user.
func (s *Service) Create(ctx context.Context, owner *models.User, params CreateParams) (*models.Chatbot, error) {
	if owner == nil || owner.ID <= 0 {
		return nil, errors.New("owner is required")
	}
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return nil, errors.New("name is required")
	}

	bot := &models.Chatbot{
		ID:              uuid.NewString(),
		UserID:          owner.ID,
		Name:            params.Name,
		Description:     params.Description,
		Introduction:    params.Introduction,
		IsCensored:      params.IsCensored,
		CreatorUsername: owner.Username,
		CreatedAt:       time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chatbots (id, user_id, name, description, introduction, is_censored, creator_username, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		bot.ID, bot.UserID, bot.Name, bot.Description, bot.Introduction, bot.IsCensored, bot.CreatorUsername, bot.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create chatbot: %w", err)
	}
	return bot, nil
}

// Get returns a chatbot by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Chatbot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, introduction, is_censored, creator_username, created_at
		 FROM chatbots WHERE id = ?`, id,
	)
	bot, err := scanChatbot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get chatbot: %w", err)
	}
	return bot, nil
}

// ListAll returns every chatbot, newest first.
func (s *Service) ListAll(ctx context.Context) ([]models.Chatbot, error) {
	return s.list(ctx,
		`SELECT id, user_id, name, description, introduction, is_censored, creator_username, created_at
		 FROM chatbots ORDER BY created_at DESC`)
}

// ListByOwner returns the chatbots created by one user, newest first.
func (s *Service) ListByOwner(ctx context.Context, userID int64) ([]models.Chatbot, error) {
	return s.list(ctx,
		`SELECT id, user_id, name, description, introduction, is_censored, creator_username, created_at
		 FROM chatbots WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// Update applies a partial edit after checking ownership and returns the
// updated record.
func (s *Service) Update(ctx context.Context, id string, callerID int64, params UpdateParams) (*models.Chatbot, error) {
	bot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if bot.UserID != callerID {
		return nil, ErrNotOwner
	}

	var (
		sets []string
		args []interface{}
	)
	if params.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*params.Name))
	}
	if params.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *params.Description)
	}
	if params.Introduction != nil {
		sets = append(sets, "introduction = ?")
		args = append(args, *params.Introduction)
	}
	if params.IsCensored != nil {
		sets = append(sets, "is_censored = ?")
		args = append(args, *params.IsCensored)
	}
	if len(sets) == 0 {
		return bot, nil
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE chatbots SET %s WHERE id = ?`, strings.Join(sets, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update chatbot: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete removes a chatbot after checking ownership. All conversations
// referencing it and all of their messages are deleted in the same
// transaction. The deleted conversation ids are returned so callers can
// release any per-conversation state held elsewhere.
func (s *Service) Delete(ctx context.Context, id string, callerID int64) ([]string, error) {
	bot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if bot.UserID != callerID {
		return nil, ErrNotOwner
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var convIDs []string
	rows, err := tx.QueryContext(ctx, `SELECT id FROM conversations WHERE chatbot_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	for rows.Next() {
		var convID string
		if err = rows.Scan(&convID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		convIDs = append(convIDs, convID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE chatbot_id = ?)`, id,
	); err != nil {
		return nil, fmt.Errorf("delete messages: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE chatbot_id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete conversations: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM chatbots WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete chatbot: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete chatbot: %w", err)
	}
	return convIDs, nil
}

func (s *Service) list(ctx context.Context, query string, args ...interface{}) ([]models.Chatbot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chatbots: %w", err)
	}
	defer rows.Close()

	var bots []models.Chatbot
	for rows.Next() {
		var bot models.Chatbot
		if err := rows.Scan(&bot.ID, &bot.UserID, &bot.Name, &bot.Description, &bot.Introduction,
			&bot.IsCensored, &bot.CreatorUsername, &bot.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chatbot: %w", err)
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChatbot(row rowScanner) (*models.Chatbot, error) {
	var bot models.Chatbot
	err := row.Scan(&bot.ID, &bot.UserID, &bot.Name, &bot.Description, &bot.Introduction,
		&bot.IsCensored, &bot.CreatorUsername, &bot.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &bot, nil
}
