package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Mail      MailConfig
	Worker    WorkerConfig
	Authz     AuthzConfig
	Seed      SeedConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

type CORSConfig struct {
	AllowedOrigins []string
}

// MailConfig covers both sides of verification email delivery: the API
// enqueues, the worker renders and sends.
type MailConfig struct {
	SMTPHost                string
	SMTPPort                int
	SMTPUsername            string
	SMTPPassword            string
	From                    string
	SiteName                string
	BaseURL                 string
	VerificationExpiryHours int
	DispatchTimeoutSeconds  int
	DispatchConcurrency     int
}

type WorkerConfig struct {
	Concurrency       int
	VerificationSweep string // cron expression
}

type AuthzConfig struct {
	CacheTTLSeconds int
}

type SeedConfig struct {
	AdminEmail     string
	AdminPassword  string
	AdminFirstName string
	AdminLastName  string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (m *MailConfig) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", m.SMTPHost, m.SMTPPort)
}

func (m *MailConfig) VerificationExpiry() time.Duration {
	return time.Duration(m.VerificationExpiryHours) * time.Hour
}

func (m *MailConfig) DispatchTimeout() time.Duration {
	return time.Duration(m.DispatchTimeoutSeconds) * time.Second
}

func (a *AuthzConfig) CacheTTL() time.Duration {
	return time.Duration(a.CacheTTLSeconds) * time.Second
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "accounts")
	v.SetDefault("DATABASE_PASSWORD", "accounts_secret")
	v.SetDefault("DATABASE_NAME", "accounts")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("MAIL_SMTP_HOST", "")
	v.SetDefault("MAIL_SMTP_PORT", 587)
	v.SetDefault("MAIL_SMTP_USERNAME", "")
	v.SetDefault("MAIL_SMTP_PASSWORD", "")
	v.SetDefault("MAIL_FROM", "no-reply@localhost")
	v.SetDefault("MAIL_SITE_NAME", "Accounts")
	v.SetDefault("MAIL_BASE_URL", "http://localhost:8080")
	v.SetDefault("MAIL_VERIFICATION_EXPIRY_HOURS", 48)
	v.SetDefault("MAIL_DISPATCH_TIMEOUT_SECONDS", 10)
	v.SetDefault("MAIL_DISPATCH_CONCURRENCY", 4)
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("WORKER_VERIFICATION_SWEEP_CRON", "*/30 * * * *")
	v.SetDefault("AUTHZ_CACHE_TTL_SECONDS", 60)
	v.SetDefault("SEED_ADMIN_EMAIL", "admin@example.com")
	v.SetDefault("SEED_ADMIN_PASSWORD", "")
	v.SetDefault("SEED_ADMIN_FIRST_NAME", "Admin")
	v.SetDefault("SEED_ADMIN_LAST_NAME", "User")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:     v.GetString("SERVER_HOST"),
			Port:     v.GetInt("SERVER_PORT"),
			Env:      v.GetString("SERVER_ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Mail: MailConfig{
			SMTPHost:                v.GetString("MAIL_SMTP_HOST"),
			SMTPPort:                v.GetInt("MAIL_SMTP_PORT"),
			SMTPUsername:            v.GetString("MAIL_SMTP_USERNAME"),
			SMTPPassword:            v.GetString("MAIL_SMTP_PASSWORD"),
			From:                    v.GetString("MAIL_FROM"),
			SiteName:                v.GetString("MAIL_SITE_NAME"),
			BaseURL:                 strings.TrimRight(v.GetString("MAIL_BASE_URL"), "/"),
			VerificationExpiryHours: v.GetInt("MAIL_VERIFICATION_EXPIRY_HOURS"),
			DispatchTimeoutSeconds:  v.GetInt("MAIL_DISPATCH_TIMEOUT_SECONDS"),
			DispatchConcurrency:     v.GetInt("MAIL_DISPATCH_CONCURRENCY"),
		},
		Worker: WorkerConfig{
			Concurrency:       v.GetInt("WORKER_CONCURRENCY"),
			VerificationSweep: v.GetString("WORKER_VERIFICATION_SWEEP_CRON"),
		},
		Authz: AuthzConfig{
			CacheTTLSeconds: v.GetInt("AUTHZ_CACHE_TTL_SECONDS"),
		},
		Seed: SeedConfig{
			AdminEmail:     v.GetString("SEED_ADMIN_EMAIL"),
			AdminPassword:  v.GetString("SEED_ADMIN_PASSWORD"),
			AdminFirstName: v.GetString("SEED_ADMIN_FIRST_NAME"),
			AdminLastName:  v.GetString("SEED_ADMIN_LAST_NAME"),
		},
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
