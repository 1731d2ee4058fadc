// Package main API Server 入口
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"account-admin/internal/apiserver/auth"
	"account-admin/internal/apiserver/server"
	"account-admin/internal/config"
	"account-admin/internal/shared/cache"
	cacheredis "account-admin/internal/shared/cache/redis"
	"account-admin/internal/shared/email"
	"account-admin/internal/shared/storage"
	"account-admin/internal/shared/storage/driver/postgres"
	"account-admin/internal/shared/storage/driver/sqlite"
	"account-admin/internal/shared/storage/mongostore"
	"account-admin/internal/shared/storage/repository"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换 YAML 与数据库）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	authCfg := auth.Config{
		JWTSecret:     cfg.JWTSecret,
		TokenTTL:      cfg.Auth.TokenTTL,
		BcryptCost:    cfg.Auth.BcryptCost,
		ResetTokenTTL: cfg.Auth.ResetTokenTTL,
		MaxAttempts:   cfg.Auth.MaxAttempts,
		AttemptWindow: cfg.Auth.AttemptWindow,
		DevMode:       cfg.IsDev(),
	}

	// 初始化持久化存储（driver 由配置决定）
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database [%s]: %v", cfg.DatabaseDriver, err)
	}
	defer store.Close()
	log.Printf("Connected to %s", cfg.DatabaseDriver)

	// 初始化 Redis（登录/重置接口限流）；未启用时退化为 NoOp
	var limiter cache.Cache = cache.NewNoOpCache()
	if cfg.RedisEnabled {
		redisStore, err := cacheredis.NewStoreFromURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		limiter = redisStore
		log.Println("Connected to Redis")
	}
	defer limiter.Close()

	mailer := email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTP.From,
	})

	// 幂等创建初始管理员账号
	if err := auth.EnsureAdminUser(store, authCfg, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to ensure admin user: %v", err)
	}

	h := server.NewHandler(store, authCfg, limiter, mailer)

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}

// openStore 根据配置选择存储实现：mongodb（默认）、postgres、sqlite
func openStore(cfg *config.Config) (storage.PersistentStore, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		dialect := postgres.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate failed: %w", err)
		}
		return repository.NewStore(db, dialect), nil
	case "sqlite":
		db, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		dialect := sqlite.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate failed: %w", err)
		}
		return repository.NewStore(db, dialect), nil
	default:
		return mongostore.NewStore(cfg.DatabaseURL, cfg.DatabaseName)
	}
}
