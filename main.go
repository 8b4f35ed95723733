package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"personachat/internal/api"
	"personachat/internal/auth"
	"personachat/internal/config"
	"personachat/internal/redis"
	"personachat/internal/service/account"
	"personachat/internal/service/ai"
	"personachat/internal/service/chat"
	"personachat/internal/service/chatbot"
	"personachat/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("PERSONACHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("PERSONACHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, token cache disabled: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	gateway, err := ai.NewGateway(context.Background(), cfg.Provider)
	if err != nil {
		log.Fatalf("init generation gateway: %v", err)
	}

	accountService := account.NewService(db)
	chatbotService := chatbot.NewService(db)
	chatService := chat.NewService(db, chatbotService, gateway)

	tokenTTL := time.Duration(cfg.BasicConfig.AuthTokenTTL) * time.Hour
	authService := auth.NewService(db, rdb, tokenTTL)

	handlers := api.NewHandler(accountService, chatbotService, chatService, authService)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
