package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/discord-age-gate/internal/config"
	"github.com/iliyamo/discord-age-gate/internal/database"
	"github.com/iliyamo/discord-age-gate/internal/handler"
	"github.com/iliyamo/discord-age-gate/internal/logging"
	"github.com/iliyamo/discord-age-gate/internal/middleware"
	"github.com/iliyamo/discord-age-gate/internal/oauth"
	"github.com/iliyamo/discord-age-gate/internal/render"
	"github.com/iliyamo/discord-age-gate/internal/repository"
	"github.com/iliyamo/discord-age-gate/internal/router"
	"github.com/iliyamo/discord-age-gate/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log, logCloser := logging.New(cfg)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Open(ctx, cfg.DatabaseURL, database.Options{
		MaxConns:          cfg.DBPoolSize,
		RetryBudget:       cfg.DBRetryBudget,
		KeepAliveInterval: cfg.DBKeepAliveInterval,
		Logger:            log,
	})
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.WithError(err).Fatal("migrate")
	}
	repo := repository.NewVerificationRepo(pool)

	// Optional collaborators: both degrade to no-ops when unset.
	rdb := config.NewRedisClient(cfg.RedisURL)
	if cfg.RedisURL != "" && rdb == nil {
		log.Warn("redis unreachable, status cache disabled")
	}
	if rdb != nil {
		defer rdb.Close()
	}
	cache := middleware.NewStatusCache(cfg.Cache(), rdb, log)
	publisher := service.NewPublisher(cfg.AMQPURL, log)

	provider := oauth.NewClient(oauth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL(),
		Timeout:      cfg.OAuthTimeout,
	})

	verify := handler.NewVerifyHandler(repo, provider, log)
	verify.Cache = cache
	if publisher != nil {
		verify.Events = publisher
	}
	status := handler.NewStatusHandler(repo, log)
	diag := &handler.DiagnosticsHandler{DB: repo, Config: cfg.Masked(), Log: log}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = middleware.IPExtractor(cfg.TrustProxy)
	e.Renderer = render.Renderer{}
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))

	router.RegisterRoutes(e, diag)
	router.RegisterVerification(e, verify)
	router.RegisterStatus(e, status, cache, cfg.StatusAPISecret)

	addr := ":" + cfg.Port
	log.WithFields(logrus.Fields{
		"addr":        addr,
		"env":         cfg.Env,
		"dialect":     pool.Dialect().Name,
		"trust_proxy": cfg.TrustProxy,
		"cache":       rdb != nil,
		"events":      publisher != nil,
	}).Info("listening")

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}
