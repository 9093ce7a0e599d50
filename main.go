package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"proximity-service/internal/auth"
	"proximity-service/internal/broadcast"
	"proximity-service/internal/config"
	"proximity-service/internal/db"
	"proximity-service/internal/handlers"
	"proximity-service/internal/middleware"
	"proximity-service/internal/observability"
	"proximity-service/internal/presence"
	"proximity-service/internal/rabbitmq"
	"proximity-service/internal/repositories"
	"proximity-service/internal/telemetry"
	"proximity-service/internal/ws"
)

const serviceName = "proximity-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	database, err := db.Connect(cfg.Database.DSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	database.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	database.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	database.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx := context.Background()
	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	defer publisher.Close()
	logger.Info("audit publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("reason", rabbitmq.PublisherNoopReason(publisher)))
	audit := telemetry.NewAuditEmitter(publisher, cfg.Telemetry.AuditRouting, serviceName, cfg.Server.Env, logger)

	store := presence.NewStore()
	presenceRepo := presence.NewRepo(database)

	// Warm the in-memory store from durable presence so restarts do not blank
	// the map for connected clients.
	if known, err := presenceRepo.ListKnown(ctx, ""); err != nil {
		logger.Warn("presence warmup failed", zap.Error(err))
	} else {
		for _, rec := range known {
			store.Upsert(rec)
		}
		logger.Info("presence store warmed", zap.Int("records", len(known)))
	}

	broadcaster := broadcast.New(store, cfg.Presence.SubscriberBuffer)
	roomRepo := repositories.NewRoomRepo(database)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	locationHandler := handlers.NewLocationHandler(store, presenceRepo, broadcaster, logger)
	roomHandler := handlers.NewRoomHandler(roomRepo, audit, cfg.Rooms.MaxMemberLimit, logger)
	presenceWS := ws.NewPresenceWebSocketHandler(broadcaster, verifier, logger)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.POST("/location", authMiddleware, locationHandler.UpdateLocation)
	router.DELETE("/location", authMiddleware, locationHandler.ClearLocation)
	router.GET("/locations", authMiddleware, locationHandler.ListLocations)

	router.POST("/rooms/direct", authMiddleware, roomHandler.StartDirectRoom)
	router.POST("/rooms", authMiddleware, roomHandler.CreateLocationRoom)
	router.GET("/rooms", authMiddleware, roomHandler.ListRooms)
	router.GET("/rooms/:room_id/members", authMiddleware, roomHandler.ListMembers)
	router.POST("/rooms/:room_id/members", authMiddleware, roomHandler.InviteMember)
	router.DELETE("/rooms/:room_id/members", authMiddleware, roomHandler.KickMember)
	router.POST("/rooms/:room_id/leave", authMiddleware, roomHandler.LeaveRoom)

	router.GET("/ws/presence", presenceWS.Handle)

	logger.Info("listening",
		zap.String("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Env),
		zap.Float64("overlap_threshold_m", cfg.Presence.OverlapThresholdM()))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
