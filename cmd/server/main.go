package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"coursecontrol/internal/actor"
	"coursecontrol/internal/blob"
	"coursecontrol/internal/cache"
	"coursecontrol/internal/chat"
	"coursecontrol/internal/config"
	"coursecontrol/internal/model"
	"coursecontrol/internal/phase"
	"coursecontrol/internal/repository"
	"coursecontrol/internal/service"
	"coursecontrol/internal/tasks"
	"coursecontrol/internal/transport/rest"
	"coursecontrol/internal/transport/ws"
)

func main() {
	log.Println("started")
	ctx := context.Background()

	cfg := config.Load()

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDB)
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		log.Fatal("Failed to ensure indexes:", err)
	}

	// Redis connection
	redisAddr := cfg.RedisAddr
	if len(redisAddr) > 8 && redisAddr[:8] == "redis://" {
		redisAddr = redisAddr[8:]
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer rdb.Close()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Initialize WebSocket hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// Initialize repositories
	subjectRepo := repository.NewSubjectRepo(db)
	sectionRepo := repository.NewSectionRepo(db)
	selectionRepo := repository.NewSelectionRepo(db)
	enrollmentRepo := repository.NewEnrollmentRepo(db)
	groupRepo := repository.NewGroupRepo(db)
	groupInviteRepo := repository.NewGroupInviteRepo(db)
	swapInviteRepo := repository.NewSwapInviteRepo(db)
	swapRepo := repository.NewSwapRepo(db)
	queueRepo := repository.NewQueueRepo(db)
	userRepo := repository.NewUserRepo(db)
	notificationRepo := repository.NewNotificationRepo(db)
	phaseRepo := repository.NewPhaseRepo(db)
	txRunner := repository.NewTxRunner(mongoClient)

	// Caches and blob storage
	seatCache := cache.NewSubjectCache(rdb)
	blobStore, err := blob.NewGridFSStore(db)
	if err != nil {
		log.Fatal("Failed to open blob store:", err)
	}

	phaseOracle := phase.NewOracle(phaseRepo)

	// Actor system
	system := actor.NewSystem(actor.Deps{
		Log:           log.Default(),
		Subjects:      subjectRepo,
		Sections:      sectionRepo,
		Selections:    selectionRepo,
		Enrollments:   enrollmentRepo,
		Groups:        groupRepo,
		GroupInvites:  groupInviteRepo,
		SwapInvites:   swapInviteRepo,
		Swaps:         swapRepo,
		Queue:         queueRepo,
		Users:         userRepo,
		Notifications: notificationRepo,
		Phases:        phaseRepo,
		Tx:            txRunner,
		Cache:         seatCache,
		Blob:          blobStore,
		Phase:         phaseOracle,
		Hub:           wsHub,
	})
	system.Aggregator().Start()
	log.Println("Actor system started")

	// Services
	authSvc := service.NewAuthService(userRepo, cfg.JWTSecret)
	chatStore := chat.NewStore()
	chatSvc := chat.NewService(chatStore, wsHub, func(userID string) (model.Role, error) {
		rctx, rcancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer rcancel()
		return userRepo.RoleOf(rctx, userID)
	})

	// Background jobs
	janitor := tasks.NewJanitor(groupInviteRepo, swapInviteRepo)
	if err := janitor.Start(); err != nil {
		log.Fatal("Failed to start janitor:", err)
	}
	defer janitor.Stop()

	// Router
	container := &rest.Container{
		AuthService:   authSvc,
		System:        system,
		ChatService:   chatSvc,
		Subjects:      subjectRepo,
		Sections:      sectionRepo,
		Selections:    selectionRepo,
		Enrollments:   enrollmentRepo,
		Notifications: notificationRepo,
		Seats:         seatCache,
		WSHub:         wsHub,
		InternalKey:   cfg.InternalCallKey,
	}
	router := rest.NewRouter(container)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
