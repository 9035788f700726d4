package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/damstudio/backend/internal/auth"
	"github.com/damstudio/backend/internal/cache"
	"github.com/damstudio/backend/internal/config"
	"github.com/damstudio/backend/internal/handlers"
	"github.com/damstudio/backend/internal/logger"
	"github.com/damstudio/backend/internal/metrics"
	"github.com/damstudio/backend/internal/middleware"
	"github.com/damstudio/backend/internal/repositories"
	"github.com/damstudio/backend/internal/services"
	"github.com/damstudio/backend/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const (
	// mediaRoute serves local version files when the local backend is used
	mediaRoute = "/media"
	// memoryDebounceEntries bounds the in-process view debouncer
	memoryDebounceEntries = 100_000
	// accessTokenExpiry only matters for tokens minted by this process, which is never in production
	accessTokenExpiry = 15 * time.Minute
)

// @title DAM Studio API
// @version 1.0
// @description Digital asset management with versioned files and role based access
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting DAM Studio backend")

	// Connect to database
	db, err := connectDB(cfg.DSN())
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(db); err != nil {
		logger.Logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	ctx := context.Background()

	// Initialize storage
	fileStorage, err := newStorage(ctx, cfg)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	// Initialize view debouncer
	debouncer, closeDebouncer, err := newDebouncer(ctx, cfg)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize view debouncer", zap.Error(err))
	}
	defer closeDebouncer()

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	// Initialize repositories
	assetRepo := repositories.NewAssetRepository(db, logger.Logger)
	versionRepo := repositories.NewVersionRepository(db, logger.Logger)
	tagRepo := repositories.NewTagRepository(db, logger.Logger)
	profileRepo := repositories.NewProfileRepository(db, logger.Logger)

	// Initialize services
	assetService := services.NewAssetService(
		assetRepo,
		versionRepo,
		fileStorage,
		debouncer,
		m,
		cfg.Assets.TxTimeout,
		logger.Logger,
	)
	tagService := services.NewTagService(tagRepo, logger.Logger)
	actorService := services.NewActorService(profileRepo, logger.Logger)

	// Initialize middleware
	tokenGenerator := auth.NewTokenGenerator(cfg.JWT.Secret, accessTokenExpiry)
	authMw := middleware.AuthMiddleware(tokenGenerator, actorService, logger.Logger)
	optionalAuthMw := middleware.OptionalAuthMiddleware(tokenGenerator, actorService, logger.Logger)

	// Initialize handlers
	assetsHandler := handlers.NewAssetsHandler(assetService, logger.Logger)
	tagsHandler := handlers.NewTagsHandler(tagService, logger.Logger)
	meHandler := handlers.NewMeHandler(logger.Logger)

	// Setup router
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggerMiddleware(logger.Logger))
	r.Use(middleware.RecoveryMiddleware(logger.Logger))
	r.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(httprate.LimitByIP(100, time.Minute))
	r.Use(middleware.RequestSizeLimitMiddleware(cfg.Assets.MaxUploadSize))
	r.Use(metrics.HTTPMiddleware(m))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler(registry))

	if cfg.Storage.Backend == config.StorageLocal {
		r.Handle(mediaRoute+"/*", http.StripPrefix(mediaRoute, storage.FileHandler(cfg.Storage.MediaBasePath)))
	}

	// Scope router to /api/v1
	r.Route("/api/v1", func(r chi.Router) {
		// View tracking also accepts anonymous viewers
		r.Group(func(r chi.Router) {
			r.Use(optionalAuthMw)
			assetsHandler.RegisterPublicRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMw)
			assetsHandler.RegisterRoutes(r)
			tagsHandler.RegisterRoutes(r)
			meHandler.RegisterRoutes(r)
		})
	})

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  60 * time.Second, // Longer timeout for file uploads
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Logger.Info("Server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("storage", cfg.Storage.Backend),
			zap.Bool("redis", cfg.Redis.Enabled()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Logger.Info("Server exited")
}

// connectDB connects to the database
func connectDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	driver, err := mysql.WithInstance(db, &mysql.Config{
		MigrationsTable: "dam_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Get the working directory or use migrations folder relative to the binary
	migrationPath := "file://migrations"
	if _, err := os.Stat("migrations"); os.IsNotExist(err) {
		// Try parent directory if running from cmd
		if _, err := os.Stat("../migrations"); err == nil {
			migrationPath = "file://../migrations"
		}
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrationPath,
		"mysql",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// newStorage creates the blob store selected by STORAGE_BACKEND
func newStorage(ctx context.Context, cfg *config.Config) (services.Storage, error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		s3cfg := cfg.Storage.S3
		s3Storage, err := storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:     s3cfg.Endpoint,
			Region:       s3cfg.Region,
			Bucket:       s3cfg.Bucket,
			AccessKey:    s3cfg.AccessKey,
			SecretKey:    s3cfg.SecretKey,
			UsePathStyle: s3cfg.UsePathStyle,
			BaseURL:      cfg.Storage.MediaBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return s3Storage, nil
	default:
		baseURL := strings.TrimRight(cfg.Storage.MediaBaseURL, "/") + mediaRoute
		return storage.NewLocalStorage(cfg.Storage.MediaBasePath, baseURL), nil
	}
}

// newDebouncer picks the shared Redis debouncer when Redis is configured and the in-process one otherwise
func newDebouncer(ctx context.Context, cfg *config.Config) (services.ViewDebouncer, func(), error) {
	window := cfg.Assets.ViewDebounceWindow

	if !cfg.Redis.Enabled() {
		logger.Logger.Warn("REDIS_HOST is not set, view debouncing is local to this process")
		return cache.NewMemoryDebouncer(memoryDebounceEntries, window), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return cache.NewRedisDebouncer(client, window), func() { client.Close() }, nil
}
