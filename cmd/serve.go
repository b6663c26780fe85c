package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/civic-report-service/internal/collab"
	"github.com/tbourn/civic-report-service/internal/config"
	httpapi "github.com/tbourn/civic-report-service/internal/http"
	"github.com/tbourn/civic-report-service/internal/observability"
	"github.com/tbourn/civic-report-service/internal/repo"
	"github.com/tbourn/civic-report-service/internal/sysutil"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = 10 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	loadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	sysutil.SetupLogger(os.Stdout, cfg.OTEL.ServiceName, cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, buildVersion())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	collabs, closeRedis, err := buildCollaborators(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRedis()

	r := gin.New()
	httpapi.RegisterRoutes(r, db, collabs, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go purgeIdempotency(ctx, db, purgeInterval)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", buildVersion()).
			Str("db", cfg.DB.Driver).
			Str("base_path", cfg.APIBasePath).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// buildCollaborators wires the outbound clients that have a configured base
// URL; the rest stay nil so the issue service uses its fallbacks. Redis is
// optional and only backs the submission limiter.
func buildCollaborators(ctx context.Context, cfg config.Config) (httpapi.Collaborators, func(), error) {
	var out httpapi.Collaborators
	timeout := cfg.Collaborators.Timeout
	hc := collab.NewHTTPClient(timeout)

	if cfg.Upload.BaseURL != "" {
		out.Uploader = collab.NewUploader(hc, timeout, cfg.Upload.BaseURL, cfg.Upload.PublicBaseURL, cfg.Upload.Bucket)
	}
	if cfg.Collaborators.AIServiceURL != "" {
		out.Classifier = collab.NewAIClient(hc, timeout, cfg.Collaborators.AIServiceURL)
	}
	if cfg.Collaborators.UserServiceURL != "" {
		out.Notifier = collab.NewNotifier(hc, timeout, cfg.Collaborators.UserServiceURL)
	}

	closeFn := func() {}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pctx).Err(); err != nil {
			_ = rdb.Close()
			return out, closeFn, fmt.Errorf("redis: %w", err)
		}
		out.Redis = rdb
		closeFn = func() { _ = rdb.Close() }
	}

	log.Info().
		Bool("uploader", out.Uploader != nil).
		Bool("classifier", out.Classifier != nil).
		Bool("notifier", out.Notifier != nil).
		Bool("redis", out.Redis != nil).
		Msg("collaborators configured")
	return out, closeFn, nil
}

// purgeIdempotency deletes expired idempotency records every interval until
// ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("idempotency purge")
			}
		}
	}
}
