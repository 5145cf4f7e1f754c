package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/stellaide/server/internal/api"
	"github.com/stellaide/server/internal/config"
	"github.com/stellaide/server/internal/handler"
	"github.com/stellaide/server/internal/infrastructure/auth"
	"github.com/stellaide/server/internal/infrastructure/kafka"
	"github.com/stellaide/server/internal/infrastructure/redis"
	"github.com/stellaide/server/internal/observability"
	core "github.com/stellaide/server/internal/repository/postgres"
	service "github.com/stellaide/server/internal/services"
)

func main() {
	shutdown, metricsHandler := observability.Setup("stellaide-auth")
	defer shutdown(context.Background())

	cfg := config.Load()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	userRepo := core.NewPostgresUserRepository(db)
	chatRepo := core.NewPostgresChatRepository(db)

	// One Redis per namespace, mirroring the three-instance deployment:
	// refresh sessions, mail verification, login tracking.
	sessionsRedis := redis.NewClient(cfg.RedisSessionsAddr, cfg.RedisPassword)
	mailRedis := redis.NewClient(cfg.RedisMailAddr, cfg.RedisPassword)
	loginsRedis := redis.NewClient(cfg.RedisLoginsAddr, cfg.RedisPassword)
	defer sessionsRedis.Close()
	defer mailRedis.Close()
	defer loginsRedis.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	tokens := auth.NewProvider(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)

	sessionService := service.NewSessionService(userRepo, sessionsRedis, loginsRedis, tokens, producer)
	mailService := service.NewMailService(userRepo, mailRedis, producer, cfg.VerificationTTL)
	authService := service.NewAuthService(userRepo, mailService, sessionService, tokens)
	chatService := service.NewChatService(chatRepo)

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	mailConsumer := kafka.NewMailConsumer(cfg.KafkaBrokers, "mail", "stellaide-mail-group", kafka.LogSender{})
	go mailConsumer.Consume(consumerCtx)
	defer mailConsumer.Close()
	defer cancelConsumer()

	authHandler := handler.NewAuthHandler(authService, sessionService, mailService, tokens)
	chatHandler := handler.NewChatHandler(chatService)
	router := api.SetupRouter(authHandler, chatHandler, tokens, metricsHandler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
