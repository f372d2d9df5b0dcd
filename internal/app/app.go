package app

import (
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/soberly/recovery"
	"github.com/soberly/recovery/internal/config"
	"github.com/soberly/recovery/internal/db"
	"github.com/soberly/recovery/internal/repository"
	"github.com/soberly/recovery/internal/service"
	"github.com/soberly/recovery/internal/service/payment"
	"github.com/soberly/recovery/internal/storage"
)

type App struct {
	Cfg                 *config.Config
	DB                  *sqlx.DB
	Redis               *redis.Client
	AuthService         *service.AuthService
	UserService         *service.UserService
	EmailService        *service.EmailService
	SubscriptionService *service.SubscriptionService
	PaymentService      payment.Provider
	CheckInService      *service.CheckInService
	StreakService       *service.StreakService
	MilestoneService    *service.MilestoneService
	AnalyticsService    *service.AnalyticsService
	CopingService       *service.CopingService
	ExportService       *service.ExportService
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a, err := Wire(cfg, database)
	if err != nil {
		database.Close()
		return nil, err
	}

	catalog, err := fs.Sub(recovery.StrategiesFS, "content/strategies")
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open strategy catalog: %w", err)
	}
	_, err = a.CopingService.SeedCatalog(catalog)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to seed strategy catalog: %w", err)
	}

	return a, nil
}

// Wire builds the services on an already migrated database.
func Wire(cfg *config.Config, database *sqlx.DB) (*App, error) {
	// Repositories
	userRepository := repository.NewUserRepository(database)
	tokenRepository := repository.NewTokenRepository(database)
	fileRepository := repository.NewFileRepository(database)
	subscriptionRepository := repository.NewSubscriptionRepository(database)
	checkInRepository := repository.NewCheckInRepository(database)
	milestoneRepository := repository.NewMilestoneRepository(database)
	copingRepository := repository.NewCopingRepository(database)

	// Storage
	fileStorage, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Evaluation lock: Redis when shared across instances, otherwise in-process
	var redisClient *redis.Client
	var locker service.UserLocker = service.NewLocalLocker()
	if cfg.RedisURL != "" {
		redisClient, err = service.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = service.NewRedisLocker(redisClient)
		slog.Info("using redis evaluation lock")
	}

	// Services
	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	subscriptionService := service.NewSubscriptionService(subscriptionRepository)

	// Initialize payment provider based on config
	paymentProvider, err := payment.NewProvider(cfg, subscriptionService)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payment provider: %w", err)
	}

	milestoneService := service.NewMilestoneService(userRepository, checkInRepository, milestoneRepository, locker, emailService)
	checkInService := service.NewCheckInService(checkInRepository, milestoneService)
	streakService := service.NewStreakService(checkInRepository)
	analyticsService := service.NewAnalyticsService(checkInRepository, copingRepository, subscriptionService)
	copingService := service.NewCopingService(copingRepository)
	exportService := service.NewExportService(
		fileRepository,
		userRepository,
		checkInRepository,
		milestoneRepository,
		copingRepository,
		subscriptionService,
		fileStorage,
	)
	authService := service.NewAuthService(
		userRepository,
		tokenRepository,
		subscriptionService,
		emailService,
		cfg.JWTSecret,
		cfg.JWTExpiry,
		cfg.RefreshTokenExpiry,
	)
	userService := service.NewUserService(userRepository, exportService, emailService, subscriptionService)

	return &App{
		Cfg:                 cfg,
		DB:                  database,
		Redis:               redisClient,
		AuthService:         authService,
		UserService:         userService,
		EmailService:        emailService,
		SubscriptionService: subscriptionService,
		PaymentService:      paymentProvider,
		CheckInService:      checkInService,
		StreakService:       streakService,
		MilestoneService:    milestoneService,
		AnalyticsService:    analyticsService,
		CopingService:       copingService,
		ExportService:       exportService,
	}, nil
}

func (a *App) Close() error {
	if a.Redis != nil {
		err := a.Redis.Close()
		if err != nil {
			slog.Warn("failed to close redis", "error", err)
		}
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
