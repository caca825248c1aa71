package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"libralend/internal/app"
	"libralend/internal/config"
	"libralend/internal/ratelimit"
	"libralend/internal/server"
	"libralend/internal/store"
	"libralend/internal/util"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var redisClient *redis.Client
	var revoker store.TokenRevoker
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
	} else {
		revoker = store.NewMemoryTokenRevoker()
		slog.Warn("redis not configured, token revocation and rate limits are per-process")
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		LoanPeriodDays: cfg.LoanPeriodDays,
		JWTSecret:      cfg.JWTSecret,
		SessionTTL:     sessionTTL,
		Revoker:        revoker,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	registerLimiter, err := newLimiter(redisClient, "libralend:ratelimit:register", cfg.RegisterRateLimitPerMinute)
	if err != nil {
		log.Fatalf("failed to init register limiter: %v", err)
	}
	loginLimiter, err := newLimiter(redisClient, "libralend:ratelimit:login", cfg.LoginRateLimitPerMinute)
	if err != nil {
		log.Fatalf("failed to init login limiter: %v", err)
	}

	httpServer := server.New(server.Config{
		App:             appCore,
		RegisterLimiter: registerLimiter,
		LoginLimiter:    loginLimiter,
		TrustProxy:      cfg.TrustProxy,
		AllowedOrigins:  config.ParseAllowedOrigins(cfg.CORSAllowedOrigins),
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("lending server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

// newLimiter builds a per-minute limiter, Redis-backed when available.
// A zero limit disables the endpoint's limiter.
func newLimiter(client *redis.Client, prefix string, perMinute int) (ratelimit.Limiter, error) {
	if perMinute <= 0 {
		return nil, nil
	}
	if client != nil {
		return ratelimit.NewRedisFixedWindowLimiter(client, prefix, perMinute, time.Minute)
	}
	return ratelimit.NewMemoryFixedWindowLimiter(perMinute, time.Minute)
}
