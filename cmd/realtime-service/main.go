package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carelink-backend/internal/config"
	"carelink-backend/internal/database"
	"carelink-backend/internal/domain"
	assistHandler "carelink-backend/internal/handler/http/assist"
	chatHandler "carelink-backend/internal/handler/http/chat"
	presenceHandler "carelink-backend/internal/handler/http/presence"
	userHandler "carelink-backend/internal/handler/http/user"
	"carelink-backend/internal/handler/ws"
	"carelink-backend/internal/middleware"
	"carelink-backend/internal/presence"
	"carelink-backend/internal/registry"
	cassandraRepo "carelink-backend/internal/repository/cassandra"
	cockroachRepo "carelink-backend/internal/repository/cockroach"
	redisRepo "carelink-backend/internal/repository/redis"
	assistService "carelink-backend/internal/service/assist"
	chatService "carelink-backend/internal/service/chat"
	"carelink-backend/pkg/constants"
	"carelink-backend/pkg/jwt"
	"carelink-backend/pkg/logger"
	"carelink-backend/pkg/metrics"
)

const serviceName = "realtime-service"

func main() {
	cfg := config.Load()

	logCfg := logger.Config{Level: "info", Format: "json"}
	if cfg.Env == "development" {
		logCfg = logger.Config{Level: "debug", Format: "console"}
	}
	if err := logger.Init(&logCfg); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if len(cfg.JWTSecret) < 32 {
		logger.Fatal("JWT_SECRET must be set and at least 32 characters")
	}
	jwtManager := jwt.NewJWTManager(cfg.JWTSecret, constants.AccessTokenExpiry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis backs presence mirroring and the cross-node relay.
	redisDB, err := database.NewRedisDB(&database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisDB.Close()
	redisDB.StartHealthCheck(ctx, 15*time.Second)
	logger.Info("connected to redis")

	// Cassandra stores message history.
	cassandraDB, err := database.NewCassandraDB(&database.CassandraConfig{
		Hosts:    []string{cfg.CassandraHost},
		Keyspace: cfg.CassandraKeyspace,
		Username: cfg.CassandraUser,
		Password: cfg.CassandraPassword,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		logger.Fatal("failed to connect to cassandra", zap.Error(err))
	}
	defer cassandraDB.Close()
	logger.Info("connected to cassandra")

	// CockroachDB stores user profiles and care pairings.
	cockroachDB, err := database.NewCockroachDB(ctx, &database.CockroachConfig{
		Host:     cfg.CockroachHost,
		Port:     cfg.CockroachPort,
		User:     cfg.CockroachUser,
		Password: cfg.CockroachPassword,
		Database: cfg.CockroachDatabase,
		SSLMode:  cfg.CockroachSSLMode,
	})
	if err != nil {
		logger.Fatal("failed to connect to cockroachdb", zap.Error(err))
	}
	defer cockroachDB.Close()
	logger.Info("connected to cockroachdb")

	m := metrics.NewMetrics(serviceName)

	// Wiring: registry -> presence tracker, hub on top of both.
	reg := registry.New()
	presenceRepo := redisRepo.NewPresenceRepository(redisDB.Client)
	tracker := presence.NewTracker(presenceRepo, reg)
	reg.AddListener(tracker)
	go tracker.Run(ctx, constants.PresenceTTL/2)

	messageRepo := cassandraRepo.NewMessageRepository(cassandraDB.Session)
	userRepo := cockroachRepo.NewUserRepository(cockroachDB.Pool)

	hub := ws.NewHub(ws.Config{
		Registry: reg,
		Redis:    redisDB.Client,
		Metrics:  m,
		Store:    &messageStoreAdapter{repo: messageRepo},
	})
	go hub.Run(ctx)

	chatSvc := chatService.NewService(messageRepo, hub)
	assistSvc := assistService.NewService(cfg.AssistBaseURL, cfg.AssistTimeout)

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.Recovery(),
		middleware.RequestLogger(),
		middleware.Prometheus(m),
		middleware.CORS([]string{"*"}),
	)

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "healthy", "service": serviceName}
		if redisDB.IsDegraded() {
			body["redis"] = "degraded"
		}
		c.JSON(status, body)
	})
	router.GET("/metrics", middleware.MetricsHandler())

	v1 := router.Group("/v1")
	v1.Use(middleware.Auth(jwtManager))
	v1.GET("/ws", hub.ServeWS)
	chatHandler.NewHandler(chatSvc).RegisterRoutes(v1)
	presenceHandler.NewHandler(presenceRepo).RegisterRoutes(v1)
	assistHandler.NewHandler(assistSvc).RegisterRoutes(v1)
	userHandler.NewHandler(userRepo).RegisterRoutes(v1)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("realtime service listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// messageStoreAdapter narrows the cassandra repository to the hub's
// persistence interface.
type messageStoreAdapter struct {
	repo *cassandraRepo.MessageRepository
}

func (a *messageStoreAdapter) SaveMessage(ctx context.Context, msg *domain.Message) error {
	return a.repo.Save(ctx, msg)
}
