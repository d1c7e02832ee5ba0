package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hugh/go-accounts/internal/api/handlers"
	"github.com/hugh/go-accounts/internal/api/middleware"
	"github.com/hugh/go-accounts/internal/auth"
	"github.com/hugh/go-accounts/internal/authz"
	"github.com/hugh/go-accounts/internal/users"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// loginAttempts caps login requests per client per window, on top of the
// global limit.
const loginAttempts = 10

type Router struct {
	chi.Router
	limiters []*middleware.RateLimiter
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	JWTService     *auth.JWTService
	AuthService    auth.Authenticator
	UserService    *users.Service
	Checker        *authz.Checker
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()
	router := &Router{Router: r}

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	if cfg.RateLimitReqs > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimitReqs, cfg.RateLimitSecs)
		router.limiters = append(router.limiters, limiter)
		r.Use(limiter.Middleware(middleware.ClientIP))
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.Logger)
	userHandler := handlers.NewUserHandler(cfg.UserService, cfg.Logger)
	authorizer := middleware.NewAuthorizer(cfg.Checker, cfg.Logger)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		loginLimiter := middleware.NewRateLimiter(loginAttempts, cfg.RateLimitSecs)
		router.limiters = append(router.limiters, loginLimiter)
		r.With(loginLimiter.Middleware(middleware.ClientIP)).Post("/auth/login", authHandler.Login)

		// Verification links carry their own token.
		r.Post("/userEmails/{userEmailId}/verify", userHandler.VerifyEmail)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))
			r.Mount("/users", userHandler.Routes(authorizer.Require))
		})
	})

	return router
}

// Close stops the rate limiter cleanup goroutines.
func (r *Router) Close() {
	for _, l := range r.limiters {
		l.Stop()
	}
}
