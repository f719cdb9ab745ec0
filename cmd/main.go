package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"novaupdate/internal/config"
	"novaupdate/internal/handler"
	"novaupdate/internal/ratelimit"
	"novaupdate/internal/repository"
	"novaupdate/internal/service"
	"novaupdate/internal/service/s3"
)

func connectWithRetry(cfg *config.Config, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	dsn := cfg.Database.GetDSN()

	// Сначала подключаемся к системной базе postgres, которая всегда существует
	pgDSN := strings.Replace(dsn, "dbname="+cfg.Database.Name, "dbname=postgres", 1)
	pgDB, err := sqlx.Connect("postgres", pgDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %v", err)
	}
	defer pgDB.Close()

	// Проверяем, существует ли целевая база данных
	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Database.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %v", err)
	}

	// Если базы нет, создаем её
	if !exists {
		log.Printf("Database %s does not exist, creating...", cfg.Database.Name)
		_, err = pgDB.Exec(fmt.Sprintf("CREATE DATABASE %s", cfg.Database.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	// Теперь пытаемся подключиться к целевой базе
	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %v", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", databaseURL)
		if err == nil {
			break
		}
		log.Printf("Failed to create migrate instance (attempt %d/5): %v", i+1, err)
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Printf("Found dirty database state at version %d, attempting to force version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func main() {
	// Загружаем конфигурации
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Подключаемся к базе данных
	db, err := connectWithRetry(appConfig, 5, time.Second*5)
	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := runMigrations(appConfig); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Инициализация S3 клиента
	s3Config, err := s3.NewConfig(".s3.env")
	if err != nil {
		log.Fatalf("Failed to load S3 config: %v", err)
	}

	s3Client, err := s3.NewClient(s3Config)
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	// Хранилище счетчиков лимитов: Redis для нескольких реплик,
	// иначе память процесса
	var limiterStore ratelimit.Store
	var memoryStore *ratelimit.MemoryStore
	if appConfig.RateLimit.RedisAddr != "" {
		redisStore, err := ratelimit.NewRedisStore(appConfig.RateLimit.RedisAddr)
		if err != nil {
			log.Fatalf("Failed to connect to redis rate limit store: %v", err)
		}
		defer redisStore.Close()
		limiterStore = redisStore
		log.Printf("Using redis rate limit store at %s", appConfig.RateLimit.RedisAddr)
	} else {
		memoryStore = ratelimit.NewMemoryStore()
		limiterStore = memoryStore
	}
	limiter := ratelimit.NewLimiter(limiterStore, appConfig.RateLimit)

	// Инициализация репозиториев
	versionRepo := repository.NewVersionRepository(db)
	deltaRepo := repository.NewDeltaRepository(db)
	downloadRepo := repository.NewDownloadRepository(db)

	// Инициализация сервисов
	catalogService := service.NewCatalogService(versionRepo, s3Client, appConfig.Server.BaseURL)
	compatibilityService := service.NewCompatibilityService(versionRepo)
	deltaService := service.NewDeltaService(deltaRepo, versionRepo, s3Client, appConfig.Delta)
	downloadService := service.NewDownloadService(downloadRepo, s3Client)

	// Инициализация хендлеров
	updateHandler := handler.NewUpdateHandler(catalogService, compatibilityService, deltaService, downloadService)
	adminHandler := handler.NewAdminHandler(catalogService, downloadService, appConfig.Server.AdminToken)

	// Настройка HTTP роутера
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Range", "X-Client-ID", "X-Admin-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition", "Content-Range", "Accept-Ranges", "X-Checksum", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	metadataLimit := handler.RateLimitMiddleware(limiter, ratelimit.CategoryMetadata)
	compatibilityLimit := handler.RateLimitMiddleware(limiter, ratelimit.CategoryCompatibility)
	deltaLimit := handler.RateLimitMiddleware(limiter, ratelimit.CategoryDelta)

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		r.Route("/updates", func(r chi.Router) {
			r.With(metadataLimit).Get("/latest", updateHandler.GetLatest)
			r.With(metadataLimit).Get("/check", updateHandler.CheckForUpdate)
			r.With(metadataLimit).Get("/metadata/{version}", updateHandler.GetMetadata)
			r.With(compatibilityLimit).Get("/compatibility/{version}", updateHandler.CheckCompatibility)
			r.With(deltaLimit).Get("/delta/{from}/{to}", updateHandler.GetDelta)
			r.With(deltaLimit).Get("/delta/{from}/{to}/download", updateHandler.DownloadDelta)
			r.With(metadataLimit).Get("/download/{version}", updateHandler.DownloadVersion)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/versions", adminHandler.CreateVersion)
			r.Get("/versions", adminHandler.ListVersions)
			r.Put("/versions/{id}", adminHandler.UpdateVersion)
			r.Put("/versions/{id}/active", adminHandler.SetActive)
			r.Delete("/versions/{id}", adminHandler.DeleteVersion)
			r.Get("/versions/{id}/downloads", adminHandler.DownloadStats)
		})
	})

	// Создаем HTTP сервер
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Запускаем HTTP сервер
	go func() {
		log.Printf("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Запускаем очистку истекших дельт и старых окон лимитера
	cleanupTicker := time.NewTicker(1 * time.Hour)
	go func() {
		for {
			select {
			case <-cleanupTicker.C:
				ctx := context.Background()
				if err := deltaService.PurgeExpired(ctx); err != nil {
					log.Printf("Error during delta purge: %v", err)
				}
				if memoryStore != nil {
					memoryStore.Cleanup(24 * time.Hour)
				}
			case <-quit:
				cleanupTicker.Stop()
				return
			}
		}
	}()

	// Ожидаем сигнал завершения
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}

	// Закрываем соединение с БД
	if err := db.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	}

	log.Println("Server exited properly")
}
