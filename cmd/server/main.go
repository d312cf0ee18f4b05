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
	_ "time/tzdata"

	"eclatpos/backend/internal/cache"
	"eclatpos/backend/internal/cart"
	"eclatpos/backend/internal/catalog"
	"eclatpos/backend/internal/config"
	"eclatpos/backend/internal/domain"
	"eclatpos/backend/internal/httpapi"
	"eclatpos/backend/internal/service"
	"eclatpos/backend/internal/store"
	"eclatpos/backend/internal/store/memory"
	pgstore "eclatpos/backend/internal/store/postgres"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("apply schema: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	snapshotCache := cache.SnapshotCache(cache.NoopSnapshotCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSnapshotCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			snapshotCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	catalogStore := catalog.New(repo, snapshotCache, time.Duration(cfg.SnapshotTTLSeconds)*time.Second)
	svc := service.New(repo, catalogStore, cart.NewRegistry(), service.Options{
		AllowNegativeStock: cfg.AllowNegativeStock,
		LowStockThreshold:  cfg.LowStockThreshold,
		Location:           cfg.Location(),
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	if err := bootstrapOperators(ctx, auth, cfg); err != nil {
		log.Fatalf("bootstrap operators: %v", err)
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	if _, err := svc.Refresh(ctx); err != nil {
		log.Printf("[server] WARN: initial snapshot failed: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Eclat POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

type operatorProvisioner interface {
	EnsureUser(ctx context.Context, username string, password string, role string) error
}

// bootstrapOperators creates the store's two operator accounts when their
// passwords are configured and the accounts do not exist yet.
func bootstrapOperators(ctx context.Context, users operatorProvisioner, cfg config.Config) error {
	if cfg.AdminPassword != "" {
		if err := users.EnsureUser(ctx, "admin", cfg.AdminPassword, domain.RoleAdmin); err != nil {
			return err
		}
	}
	if cfg.CashierPassword != "" {
		if err := users.EnsureUser(ctx, "eclat", cfg.CashierPassword, domain.RoleCashier); err != nil {
			return err
		}
	}
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AdminPassword != "" && len(cfg.AdminPassword) < 8 {
		return fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD must be at least 8 characters")
	}
	if cfg.AllowedOrigin == "*" && cfg.DatabaseURL != "" {
		return fmt.Errorf("ALLOWED_ORIGIN must name the POS front-end origin in production")
	}
	return nil
}
