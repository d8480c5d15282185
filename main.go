package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	api "taskmind-backend/cmd/api"
	accountDelivery "taskmind-backend/internal/account/delivery"
	accountdomain "taskmind-backend/internal/account/domain"
	accountRepo "taskmind-backend/internal/account/repository"
	accountUsecase "taskmind-backend/internal/account/usecase"
	authDelivery "taskmind-backend/internal/auth/delivery"
	authdomain "taskmind-backend/internal/auth/domain"
	authRepo "taskmind-backend/internal/auth/repository"
	authUsecase "taskmind-backend/internal/auth/usecase"
	"taskmind-backend/internal/ingest"
	"taskmind-backend/internal/notification"
	taskDelivery "taskmind-backend/internal/task/delivery"
	taskdomain "taskmind-backend/internal/task/domain"
	taskRepo "taskmind-backend/internal/task/repository"
	"taskmind-backend/internal/task/scheduler"
	taskUsecase "taskmind-backend/internal/task/usecase"
	"taskmind-backend/internal/usage"
	"taskmind-backend/pkg/ai"
	"taskmind-backend/pkg/config"
	"taskmind-backend/pkg/database"
	"taskmind-backend/pkg/fcm"
	"taskmind-backend/pkg/gcal"
	"taskmind-backend/pkg/gemini"
	"taskmind-backend/pkg/gmail"
	"taskmind-backend/pkg/imapmail"
	"taskmind-backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&authdomain.RefreshToken{},
		&authdomain.FCMToken{},
		&accountdomain.Connection{},
		&accountdomain.PriorityContact{},
		&taskdomain.Task{},
		&notification.Notification{},
		&usage.Counter{},
	); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	// Initialize repositories
	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	connRepo := accountRepo.NewGormConnectionRepository(db)
	contactRepo := accountRepo.NewGormPriorityContactRepository(db)
	taskRepository := taskRepo.NewGormTaskRepository(db)
	notificationRepo := notification.NewGormRepository(db)
	usageRepo := usage.NewGormRepository(db)

	// FCM push client (optional; notifications still persist without it)
	var fcmClient *fcm.Client
	if cfg.FirebaseCredentials != "" {
		fcmClient, err = fcm.NewClient(cfg.FirebaseCredentials)
		if err != nil {
			log.Warn("push notifications disabled", zap.Error(err))
			fcmClient = nil
		}
	}

	notificationService := notification.NewService(notificationRepo, fcmTokenRepo, fcmClient, log)

	// Classification: Gemini primary when a key is configured, deterministic
	// fallback always available.
	loc := cfg.Location()
	var remote ai.RemoteClassifier
	if cfg.GeminiAPIKey != "" {
		remote = gemini.NewService(cfg.GeminiAPIKey, loc)
	} else {
		log.Warn("no Gemini API key configured, using fallback classifier only")
	}
	classifier := ai.NewService(remote, loc, log)

	// Message sources
	sources := map[accountdomain.Provider]accountdomain.MessageSource{
		accountdomain.ProviderGmail: gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret),
		accountdomain.ProviderIMAP:  imapmail.NewService(),
	}

	// Dedup ledger: Redis-backed when available, in-memory otherwise.
	var ledger ingest.Ledger
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ledger = ingest.NewRedisLedger(redisClient, cfg.DedupWindow, log)
	} else {
		ledger = ingest.NewMemoryLedger(cfg.DedupWindow)
	}

	// Reminder scheduler and rescheduler
	reminderScheduler := scheduler.NewReminderScheduler(taskRepository, notificationService, cfg.ReminderInterval, log)
	rescheduler := taskUsecase.NewRescheduler(taskRepository, reminderScheduler, log)

	// Ingestion pipeline
	deriver := taskUsecase.NewDeriver()
	processor := taskUsecase.NewProcessor(classifier, deriver, notificationService, contactRepo, log)
	supervisor := ingest.NewSupervisor(sources, ledger, notificationService, processor, notificationService, connRepo, cfg.PollInterval, log)

	// Use cases
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepo, fcmTokenRepo, cfg)
	accountUsecaseInstance := accountUsecase.NewAccountUsecase(connRepo, contactRepo, sources, supervisor, log)
	taskUsecaseInstance := taskUsecase.NewTaskUsecase(
		db, taskRepository, usageRepo, notificationRepo, connRepo,
		rescheduler, reminderScheduler, gcal.NewService(), cfg.AITaskQuota, log,
	)

	// Handlers
	authHandler := authDelivery.NewAuthHandler(authUsecaseInstance)
	accountHandler := accountDelivery.NewAccountHandler(accountUsecaseInstance)
	notificationHandler := notification.NewHandler(notificationRepo)
	taskHandler := taskDelivery.NewTaskHandler(taskUsecaseInstance)

	// Background loops: reminder sweep plus one poller per active connection.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	reminderScheduler.Start(ctx)
	if err := supervisor.Resume(ctx); err != nil {
		log.Error("failed to resume pollers", zap.Error(err))
	}

	r := gin.Default()
	api.SetupRoutes(r, authUsecaseInstance, authHandler, accountHandler, notificationHandler, taskHandler)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		supervisor.StopAll()
		reminderScheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown", zap.Error(err))
		}
	}()

	log.Info("server starting", zap.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("failed to start server", zap.Error(err))
	}
}
