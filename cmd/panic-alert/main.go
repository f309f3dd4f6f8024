package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/mr1hm/go-panic-alerts/internal/api"
	"github.com/mr1hm/go-panic-alerts/internal/auth"
	"github.com/mr1hm/go-panic-alerts/internal/config"
	"github.com/mr1hm/go-panic-alerts/internal/lifecycle"
	"github.com/mr1hm/go-panic-alerts/internal/logging"
	"github.com/mr1hm/go-panic-alerts/internal/notify"
	"github.com/mr1hm/go-panic-alerts/internal/provision"
	"github.com/mr1hm/go-panic-alerts/internal/repository"
	"github.com/mr1hm/go-panic-alerts/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
	}); err != nil {
		slog.Warn("sentry init failed, error tracking disabled", "error", err)
	}
	defer sentry.Flush(2 * time.Second)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	patrols := repository.NewPatrolLocationStore(redisClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Real-time channel for dashboard SSE subscribers
	broadcaster := notify.NewBroadcaster()

	var publisher notify.Publisher
	var mqttPublisher *notify.MQTTPublisher
	if cfg.MQTT.Enabled {
		mqttPublisher, err = notify.NewMQTTPublisher(cfg.MQTT)
		if err != nil {
			logging.Fatalf("Failed to connect MQTT publisher: %v", err)
		}
		publisher = mqttPublisher
	}

	dispatcher := notify.NewDispatcher(broadcaster, publisher, cfg.Worker.Count, cfg.Worker.BufferSize)
	dispatcher.Start(ctx)

	engine := lifecycle.NewEngine(db, db, cfg.Urgency)

	// Background expiration sweeper
	sw := sweeper.New(db, dispatcher, cfg.Sweep)
	sw.Start(ctx)

	var provisioner provision.DeviceService
	if cfg.TTS.Enabled {
		provisioner = provision.NewTTSClient(cfg.TTS)
	}

	verifier := auth.NewJWTVerifier(cfg.Auth)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))

	handler := api.NewHandler(engine, db, db, patrols, dispatcher, broadcaster, provisioner)
	handler.RegisterRoutes(router, verifier)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	// End the SSE streams so Shutdown is not held open by them, then drain
	// in-flight requests before stopping the components handlers dispatch
	// into.
	broadcaster.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	cancel()
	sw.Stop()
	dispatcher.Stop()
	if mqttPublisher != nil {
		mqttPublisher.Disconnect()
	}

	slog.Info("shutdown complete")
}
