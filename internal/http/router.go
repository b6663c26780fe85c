// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/civic-report-service/docs" // registers the OpenAPI document with swag

	"github.com/tbourn/civic-report-service/internal/auth"
	"github.com/tbourn/civic-report-service/internal/config"
	"github.com/tbourn/civic-report-service/internal/domain"
	"github.com/tbourn/civic-report-service/internal/http/handlers"
	"github.com/tbourn/civic-report-service/internal/http/middleware"
	"github.com/tbourn/civic-report-service/internal/repo"
	"github.com/tbourn/civic-report-service/internal/services"
)

// Collaborators are the outbound clients the issue service talks to. Any of
// them may be nil, in which case the documented fallback applies (placeholder
// image URL, Uncategorized, medium priority, no notification).
type Collaborators struct {
	Uploader   services.Uploader
	Classifier services.Classifier
	Notifier   services.Notifier

	// Redis, when set, backs the per-user submission limit shared by every
	// replica. Without it the limit is enforced per process.
	Redis *redis.Client
}

// idempotencyShim adapts the repository free functions to
// handlers.IdempotencyStore.
type idempotencyShim struct{ db *gorm.DB }

// Get proxies repo.GetIdempotency.
func (s idempotencyShim) Get(ctx context.Context, userID int64, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, s.db, userID, key, now)
}

// Put proxies repo.CreateIdempotency.
func (s idempotencyShim) Put(ctx context.Context, userID int64, key string, res repo.IdempotentResult, ttl time.Duration) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, key, res, ttl)
	return err
}

// NewIssueService builds the issue service from configuration and the
// collaborator clients.
func NewIssueService(db *gorm.DB, collab Collaborators, cfg config.Config) *services.IssueService {
	svc := services.NewIssueService(db, collab.Uploader, collab.Classifier, collab.Notifier)
	svc.Tolerance = cfg.DuplicateTolerance
	svc.PlaceholderURL = cfg.Upload.PlaceholderURL
	svc.NotifyTimeout = cfg.Collaborators.Timeout
	return svc
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), CORS and security
// headers, health, metrics and docs endpoints, and then mounts the versioned
// issue API under cfg.APIBasePath.
//
// Global middleware order:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. gzip, CORS and security headers
//
// POST /issues additionally runs RequireUser → IdempotencyValidator →
// submission rate limiter, so the limiter can key by user and skip replays.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, collab Collaborators, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (multipart images included)
	r.Use(limitBody(cfg.MaxBodyBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression, CORS posture, security headers
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/readiness
	health := handlers.Health{DB: db}
	r.GET("/health", health.Ready)
	r.GET("/health/live", health.Live)

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: handlers ← services ← repo/db + collaborators
	h := handlers.New(
		NewIssueService(db, collab, cfg),
		idempotencyShim{db: db},
		handlers.Options{MaxImageBytes: cfg.Upload.MaxImageBytes, IdempotencyTTL: cfg.IdempotencyTTL},
	)
	tokens := auth.NewDecoder(cfg.Auth.JWTSecret)

	idem := middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID int64, key string, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, db, userID, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		},
	)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/issues", h.ListIssues)
		api.GET("/issues/:id", h.GetIssue)

		user := api.Group("", middleware.RequireUser(tokens))
		user.POST("/issues", idem, submitLimiter(collab.Redis, cfg), h.SubmitIssue)
		user.POST("/issues/:id/confirm", h.ConfirmIssue)
		user.POST("/issues/:id/comments", h.AddComment)

		api.PUT("/issues/:id/status", middleware.RequireEmployee(tokens), h.UpdateIssueStatus)
	}
}

// submitLimiter picks the Redis fixed-window limiter when Redis is configured
// and the in-process token bucket otherwise. Both key by user id.
func submitLimiter(rdb *redis.Client, cfg config.Config) gin.HandlerFunc {
	if rdb != nil {
		return middleware.NewWindowLimiter(rdb, "ratelimit:submit", cfg.SubmitPerMinute, time.Minute, middleware.KeyByUserOrIP()).Handler()
	}
	return middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler()
}

// corsMiddleware returns the CORS chain. With no allowlist every origin is
// accepted without credentials; otherwise only listed origins are echoed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "If-None-Match"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// Force ACAO: * even for requests without an Origin header (simple
		// health checks and tests).
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
