package chatbot

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"personachat/internal/config"
	"personachat/internal/models"
	"personachat/internal/storage"
)

func TestCreateAndGetChatbot(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	owner := insertUser(t, db, "alice")
	ctx := context.Background()

	bot, err := svc.Create(ctx, owner, CreateParams{
		Name:         "Nova",
		Description:  "a helpful guide",
		Introduction: "Hi, I'm Nova.",
		IsCensored:   true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if bot.ID == "" {
		t.Fatalf("expected generated chatbot id")
	}
	if bot.CreatorUsername != "alice" {
		t.Fatalf("expected creator username, got %q", bot.CreatorUsername)
	}

	got, err := svc.Get(ctx, bot.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Nova" || !got.IsCensored {
		t.Fatalf("unexpected chatbot: %+v", got)
	}

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateChatbotPartialAndOwnership(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	owner := insertUser(t, db, "bob")
	other := insertUser(t, db, "mallory")
	ctx := context.Background()

	bot, err := svc.Create(ctx, owner, CreateParams{Name: "Sage", Description: "wise", IsCensored: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newName := "Sage II"
	uncensored := false
	updated, err := svc.Update(ctx, bot.ID, owner.ID, UpdateParams{Name: &newName, IsCensored: &uncensored})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Sage II" || updated.IsCensored {
		t.Fatalf("partial update not applied: %+v", updated)
	}
	if updated.Description != "wise" {
		t.Fatalf("untouched field changed: %+v", updated)
	}

	if _, err := svc.Update(ctx, bot.ID, other.ID, UpdateParams{Name: &newName}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestDeleteChatbotCascades(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	owner := insertUser(t, db, "carol")
	ctx := context.Background()

	bot, err := svc.Create(ctx, owner, CreateParams{Name: "Echo"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	convID := insertConversation(t, db, owner.ID, bot.ID)
	insertMessage(t, db, convID, "user", "hello")
	insertMessage(t, db, convID, "chatbot", "hi")

	convIDs, err := svc.Delete(ctx, bot.ID, owner.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(convIDs) != 1 || convIDs[0] != convID {
		t.Fatalf("expected deleted conversation ids [%s], got %v", convID, convIDs)
	}

	if count := countRows(t, db, `SELECT COUNT(*) FROM chatbots`); count != 0 {
		t.Fatalf("chatbot not deleted, %d rows remain", count)
	}
	if count := countRows(t, db, `SELECT COUNT(*) FROM conversations`); count != 0 {
		t.Fatalf("conversations not cascaded, %d rows remain", count)
	}
	if count := countRows(t, db, `SELECT COUNT(*) FROM messages`); count != 0 {
		t.Fatalf("messages not cascaded, %d rows remain", count)
	}
}

func TestDeleteChatbotOwnershipAndMissing(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	owner := insertUser(t, db, "dave")
	other := insertUser(t, db, "eve")
	ctx := context.Background()

	bot, err := svc.Create(ctx, owner, CreateParams{Name: "Keep"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Delete(ctx, bot.ID, other.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := svc.Delete(ctx, "missing", owner.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAllAndByOwner(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	alice := insertUser(t, db, "alice")
	bob := insertUser(t, db, "bob")
	ctx := context.Background()

	if _, err := svc.Create(ctx, alice, CreateParams{Name: "A"}); err != nil {
		t.Fatalf("create A: %v", err)
	}
	if _, err := svc.Create(ctx, bob, CreateParams{Name: "B"}); err != nil {
		t.Fatalf("create B: %v", err)
	}

	all, err := svc.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 chatbots, got %d", len(all))
	}

	mine, err := svc.ListByOwner(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(mine) != 1 || mine[0].Name != "A" {
		t.Fatalf("unexpected owner listing: %+v", mine)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func insertUser(t *testing.T, db *sql.DB, username string) *models.User {
	t.Helper()
	now := time.Now().UTC()
	res, err := db.Exec(`INSERT INTO users (username, password_hash, created_at) VALUES (?, '', ?)`, username, now)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return &models.User{ID: id, Username: username, CreatedAt: now}
}

func insertConversation(t *testing.T, db *sql.DB, userID int64, chatbotID string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO conversations (id, user_id, chatbot_id, created_at) VALUES (?, ?, ?, ?)`,
		id, userID, chatbotID, time.Now().UTC())
	if err != nil {
		t.Fatalf("insert conversation: %v", err)
	}
	return id
}

func insertMessage(t *testing.T, db *sql.DB, conversationID, sender, content string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO messages (id, conversation_id, sender_type, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), conversationID, sender, content, time.Now().UTC())
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
}

func countRows(t *testing.T, db *sql.DB, query string) int {
	t.Helper()
	var count int
	if err := db.QueryRow(query).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return count
}
