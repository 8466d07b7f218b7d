package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	DbHost    string `env:"DB_HOST"`
	DbPort    string `env:"DB_PORT" envDefault:"5432"`
	DbUser    string `env:"DB_USER"`
	DbPass    string `env:"DB_PASSWORD"`
	DbName    string `env:"DB_NAME"`
	DbSSLMode string `env:"DB_SSLMODE" envDefault:"disable"`
	DbMaxConn int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	// DbAutoMigrate: накатывать встроенную схему при старте.
	DbAutoMigrate bool `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	JWTSecret      string        `env:"JWT_SECRET"`
	BearerTokenTTL time.Duration `env:"BEARER_TOKEN_TTL" envDefault:"24h"`
	ScopedTokenTTL time.Duration `env:"SCOPED_TOKEN_TTL" envDefault:"1h"`

	CodeTTL        time.Duration `env:"CODE_TTL" envDefault:"15m"`
	CodeRateWindow time.Duration `env:"CODE_RATE_WINDOW" envDefault:"1h"`
	CodeRateLimit  int           `env:"CODE_RATE_LIMIT" envDefault:"4"`

	RevocationRetention time.Duration `env:"REVOCATION_RETENTION" envDefault:"24h"`
	RevocationBackend   string        `env:"REVOCATION_BACKEND" envDefault:"postgres"` // postgres|redis
	RedisAddr           string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword       string        `env:"REDIS_PASSWORD"`
	RedisDB             int           `env:"REDIS_DB" envDefault:"0"`

	StorageTimeout  time.Duration `env:"STORAGE_TIMEOUT" envDefault:"5s"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`
	EmailWorkers int    `env:"EMAIL_WORKERS" envDefault:"3"`

	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	APIPrefix   string `env:"API_PREFIX" envDefault:"/v1"`

	Log      string `env:"LOG"`
	LogLevel string `env:"LOGLEVEL" envDefault:"info"`
	Env      string `env:"ENV" envDefault:"prod"` // dev|prod
}

// LoadConfig загружает .env, затем читает переменные окружения поверх дефолтов.
// Ничего не логирует: logger сам зависит от конфига.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	cfg.RevocationBackend = strings.ToLower(strings.TrimSpace(cfg.RevocationBackend))
	cfg.APIPrefix = "/" + strings.Trim(cfg.APIPrefix, "/")
	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUser
	}

	return cfg, nil
}

// Validate возвращает предупреждения и фатальную ошибку (если критично).
func (c *Config) Validate() (warnings []string, err error) {
	if c.DbHost == "" || c.DbUser == "" || c.DbName == "" {
		return nil, errors.New("incomplete DB config (DB_HOST/DB_USER/DB_NAME)")
	}

	// Подпись токенов без секрета это дыра, а не предупреждение.
	if len(strings.TrimSpace(c.JWTSecret)) < 32 {
		return nil, errors.New("JWT_SECRET must be at least 32 bytes")
	}

	if c.BearerTokenTTL <= 0 || c.ScopedTokenTTL <= 0 || c.CodeTTL <= 0 {
		return nil, errors.New("token and code TTLs must be positive")
	}
	if c.CodeRateLimit <= 0 || c.CodeRateWindow <= 0 {
		return nil, errors.New("CODE_RATE_LIMIT and CODE_RATE_WINDOW must be positive")
	}

	switch c.RevocationBackend {
	case "postgres", "redis":
	default:
		return nil, fmt.Errorf("unknown REVOCATION_BACKEND %q", c.RevocationBackend)
	}

	// Запись об отзыве должна пережить сам токен, иначе чистка вернёт его в строй.
	if c.RevocationRetention < c.BearerTokenTTL {
		warnings = append(warnings, fmt.Sprintf(
			"REVOCATION_RETENTION %s is shorter than BEARER_TOKEN_TTL, using %s",
			c.RevocationRetention, c.BearerTokenTTL))
		c.RevocationRetention = c.BearerTokenTTL
	}

	if c.SMTPHost == "" || c.SMTPUser == "" {
		warnings = append(warnings, "SMTP is not fully configured, verification codes will not be delivered")
	}

	if c.StorageTimeout <= 0 {
		warnings = append(warnings, "STORAGE_TIMEOUT is not positive, using 5s")
		c.StorageTimeout = 5 * time.Second
	}

	if c.EmailWorkers <= 0 {
		warnings = append(warnings, "EMAIL_WORKERS is not positive, using 1")
		c.EmailWorkers = 1
	}

	return warnings, nil
}

// GetDSN: полная DSN (с паролем)
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DbUser, c.DbPass, c.DbHost, c.DbPort, c.DbName, c.DbSSLMode,
	)
}

// GetDSNSafe: DSN без пароля (для логов)
func (c *Config) GetDSNSafe() string {
	return fmt.Sprintf(
		"postgres://%s:***@%s:%s/%s?sslmode=%s",
		c.DbUser, c.DbHost, c.DbPort, c.DbName, c.DbSSLMode,
	)
}
