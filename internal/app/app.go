package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"authcore/internal/config"
	"authcore/internal/db"
	"authcore/internal/handlers"
	"authcore/internal/logger"
	"authcore/internal/repository"
	"authcore/internal/routes"
	"authcore/internal/services"
	"authcore/internal/utils"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App держит всё, что нужно закрыть при остановке.
type App struct {
	Handler http.Handler

	pool   *pgxpool.Pool
	rdb    *redis.Client
	email  *services.EmailService
	cancel context.CancelFunc
	jobs   sync.WaitGroup
}

func InitApp(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := db.NewPostgresConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.DbAutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	a := &App{pool: pool}
	bg, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	// Репозитории
	userRepo := repository.NewUserRepository(pool)
	codeRepo := repository.NewVerificationCodeRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)
	revocationRepo, err := a.revocationRepo(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	tokens := utils.NewTokenManager(cfg.JWTSecret, cfg.BearerTokenTTL, cfg.ScopedTokenTTL)
	hasher := utils.NewBcryptHasher(0)

	// Почта: очередь и воркеры
	a.email = services.NewEmailService(cfg)
	a.email.StartWorkers(bg, cfg.EmailWorkers)
	notifier := services.NewMailNotifier(a.email, cfg.FrontendURL, cfg.CodeTTL, cfg.ScopedTokenTTL)

	// Сервисы
	codes := services.NewVerificationService(codeRepo, services.VerificationConfig{
		CodeTTL:        cfg.CodeTTL,
		RateWindow:     cfg.CodeRateWindow,
		RateLimit:      cfg.CodeRateLimit,
		StorageTimeout: cfg.StorageTimeout,
	})
	revocations := services.NewRevocationService(revocationRepo, cfg.StorageTimeout)
	authService := services.NewAuthService(userRepo, codes, revocations, tokens, hasher, notifier, cfg.StorageTimeout)
	passwordService := services.NewPasswordService(userRepo, resetRepo, tokens, hasher, notifier, cfg.ScopedTokenTTL, cfg.StorageTimeout)
	gate := services.NewAdmissionGate(services.DefaultAdmissionConfig(cfg.APIPrefix), tokens, revocations, codes)

	// Маршруты
	router := mux.NewRouter()
	routes.InitRoutes(router, cfg.APIPrefix, routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService),
		Password: handlers.NewPasswordHandler(passwordService),
		Status:   handlers.NewStatusHandler(pool, cfg.StorageTimeout),
	})
	a.Handler = routes.Wrap(router, gate)

	// ▶️ Периодическая чистка
	StartCleaner(bg, &a.jobs, cfg.CleanupInterval,
		CleanupJob{Name: "verification_codes", Run: codes.PurgeExpiredAndUsed},
		CleanupJob{Name: "revocations", Run: func(ctx context.Context) (int64, error) {
			return revocations.PurgeOlderThan(ctx, cfg.RevocationRetention)
		}},
		CleanupJob{Name: "reset_tokens", Run: passwordService.PurgeExpired},
	)

	return a, nil
}

func (a *App) revocationRepo(ctx context.Context, cfg *config.Config) (repository.RevocationRepo, error) {
	if cfg.RevocationBackend != "redis" {
		return repository.NewRevocationRepository(a.pool), nil
	}

	a.rdb = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pctx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	defer cancel()
	if err := a.rdb.Ping(pctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Log.Info("Реестр отзыва токенов: redis", zap.String("addr", cfg.RedisAddr))
	return repository.NewRedisRevocationRepository(a.rdb, cfg.RevocationRetention), nil
}

// Close останавливает фоновые задачи и закрывает соединения.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	a.jobs.Wait()
	if a.email != nil {
		a.email.Wait()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
