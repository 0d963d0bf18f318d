package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/devcoons/software-governance-sub000/handlers"
	"github.com/devcoons/software-governance-sub000/internal/auth"
	"github.com/devcoons/software-governance-sub000/internal/config"
	"github.com/devcoons/software-governance-sub000/internal/credentials"
	"github.com/devcoons/software-governance-sub000/internal/database"
	"github.com/devcoons/software-governance-sub000/internal/ratelimit"
	"github.com/devcoons/software-governance-sub000/internal/refresh"
	"github.com/devcoons/software-governance-sub000/internal/sessions"
	"github.com/devcoons/software-governance-sub000/internal/store"
	"github.com/devcoons/software-governance-sub000/internal/totp"
	"github.com/devcoons/software-governance-sub000/internal/users"
	"github.com/devcoons/software-governance-sub000/pkg/logger"
	"github.com/devcoons/software-governance-sub000/pkg/metrics"
	"github.com/devcoons/software-governance-sub000/pkg/middleware"
)

var startTime = time.Now()

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v redis=%v", cfg.MongoDB.URI != "", cfg.Redis.Host != "")

	ctx := context.Background()

	// Redis holds every session and refresh record; without it there is no
	// auth state to serve, so fail fast instead of degrading.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatalf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
	}
	logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
	st := store.New(redisClient, cfg.Auth.StoreTimeout)

	// user directory: MongoDB when configured, in-memory otherwise (dev only)
	var dir users.Repository
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Fatalf("could not connect to MongoDB: %v", err)
		}
		defer func() { _ = client.Disconnect(ctx) }()
		dir = users.NewMongoRepository(client.Database(cfg.MongoDB.Database).Collection("users"))
		logger.Infof("using MongoDB user directory (db=%s)", cfg.MongoDB.Database)
	} else {
		dir = users.NewMemoryRepository()
		logger.Warnf("MONGODB_URI not set; using in-memory user directory")
	}

	hasher := credentials.NewHasher(credentials.Params{
		MemoryKiB:   cfg.Argon2.MemoryKiB,
		Time:        cfg.Argon2.Time,
		Parallelism: cfg.Argon2.Parallelism,
	})
	sessionMgr := sessions.NewManager(st)
	refreshMgr := refresh.NewManager(st, refresh.Policy{
		IdleTTL:       cfg.Auth.RefreshIdleTTL,
		ReplayGrace:   cfg.Auth.ReplayGrace,
		StaleLock:     cfg.Auth.StaleLock,
		TombstoneTTL:  cfg.Auth.TombstoneTTL,
		MaxFamilies:   cfg.Auth.MaxRefreshFamilies,
		BindUserAgent: cfg.Auth.BindUserAgent,
		BindIP:        cfg.Auth.BindIP,
	})
	verifier := totp.NewVerifier(dir, cfg.Auth.TOTPIssuer)
	resetCounter := ratelimit.NewRedisCounter(redisClient, "auth:ctr:", cfg.RateLimit.ResetAttempts, cfg.RateLimit.ResetWindow)
	svc := auth.NewService(cfg.Auth, dir, hasher, sessionMgr, refreshMgr, verifier, resetCounter)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// the limiter is attached per route after session auth, so authenticated
	// traffic is keyed by user id and only anonymous traffic pools by IP
	limit := gin.HandlerFunc(func(c *gin.Context) { c.Next() })
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			limit = middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win)
		} else {
			limit = middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		deps := gin.H{"redis": true}
		if err := st.Ping(c.Request.Context()); err != nil {
			deps["redis"] = false
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": time.Since(startTime).String()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": time.Since(startTime).String()})
	})

	sessionAuth := middleware.SessionAuth(sessionMgr)
	root := r.Group("/")
	handlers.NewAuthHandler(cfg, svc, verifier).Register(root, sessionAuth, limit)
	handlers.NewBridgeHandler(cfg, svc).Register(root, limit)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting auth service on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
