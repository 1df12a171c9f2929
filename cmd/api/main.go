package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Roizz-soul/Solublog/internal/app"
	"github.com/Roizz-soul/Solublog/internal/authpw"
	"github.com/Roizz-soul/Solublog/internal/blog"
	"github.com/Roizz-soul/Solublog/internal/config"
	"github.com/Roizz-soul/Solublog/internal/email"
	"github.com/Roizz-soul/Solublog/internal/notification"
	"github.com/Roizz-soul/Solublog/internal/rbac"
	"github.com/Roizz-soul/Solublog/internal/search"
	"github.com/Roizz-soul/Solublog/internal/session"
	"github.com/Roizz-soul/Solublog/internal/store"
	"github.com/Roizz-soul/Solublog/internal/store/memstore"
	"github.com/Roizz-soul/Solublog/internal/store/mongostore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Error("document store connection failed", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer backend.Close()
	logger.Info("document store ready", "backend", cfg.StoreBackend)

	sessions, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		logger.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	defer sessions.Close()

	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
		engine = meili
	}
	searchService := search.NewService(engine, backend, logger)
	searchService.Reindex(ctx)

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, logger)
	if !mailer.IsConfigured() {
		logger.Warn("SMTP not configured, confirmation and reset tokens are returned in responses")
	}

	authService := authpw.NewService(backend, sessions, mailer, authpw.Config{
		PublicURL:     cfg.PublicURL,
		ResetTokenTTL: cfg.ResetTokenTTL,
	}, logger)
	notifications := notification.NewService(backend, logger)
	blogService := blog.NewService(backend, notifications, logger,
		blog.WithIndex(searchService),
		blog.WithPolicy(rbac.Policy{OpenEditing: cfg.OpenEditing}),
	)

	service := app.NewService(app.Deps{
		Store:          backend,
		Sessions:       sessions,
		Auth:           authService,
		Blog:           blogService,
		Notifications:  notifications,
		SMTPConfigured: mailer.IsConfigured(),
		Logger:         logger,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("Solublog API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	authService.Wait()
	searchService.Wait()
}

func openBackend(ctx context.Context, cfg config.Config) (store.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		s, err := mongostore.Connect(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMemory:
		return memstore.New(), nil
	default:
		s, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
