package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger-service/internal/auth"
	"messenger-service/internal/config"
	"messenger-service/internal/core"
	"messenger-service/internal/handlers"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/store"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, "messenger-service", cfg.OTLPEndpoint)
	if err != nil {
		log.Error("init tracing failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Error("create upload dir failed", "err", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Error("open store failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ledgerRepo := store.NewLedgerRepo(db)
	userRepo := store.NewUserRepo(db)

	publisher := rabbitmq.NewPublisher(log, cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	audit := telemetry.NewAuditEmitter(log, publisher, "audit.messenger", "messenger-service", cfg.Environment)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	ledger := core.NewLedger(log, ledgerRepo)
	engine := core.NewEngine(log, tokens, userRepo, ledger, audit)
	if err := engine.Load(); err != nil {
		log.Error("restore ledger failed", "err", err)
		os.Exit(1)
	}
	go engine.Run(ctx)

	wsHandler := ws.NewHandler(log, engine, cfg.SendBuffer)
	authHandler := handlers.NewAuthHandler(log, userRepo, tokens, audit)
	contactsHandler := handlers.NewContactsHandler(log, userRepo)
	uploadHandler := handlers.NewUploadHandler(log, cfg.UploadDir)
	messageHandler := handlers.NewMessageHandler(log, engine)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("messenger-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(tokens)

	api := router.Group("/api")
	api.POST("/register", authHandler.Register)
	api.POST("/login", authHandler.Login)
	api.POST("/verify-token", authMiddleware, authHandler.VerifyToken)
	api.GET("/contacts", authMiddleware, contactsHandler.List)
	api.POST("/upload", authMiddleware, uploadHandler.Upload)
	api.PUT("/messages/:id", authMiddleware, messageHandler.Edit)
	api.DELETE("/messages/:id", authMiddleware, messageHandler.Delete)

	router.Static("/uploads", cfg.UploadDir)
	router.GET("/ws", wsHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("server starting", "port", cfg.Port, "publisher", rabbitmq.Mode(publisher))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}
