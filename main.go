package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"cipher-chat/internal/config"
	"cipher-chat/internal/db"
	"cipher-chat/internal/delivery"
	"cipher-chat/internal/handlers"
	"cipher-chat/internal/identity"
	"cipher-chat/internal/middleware"
	"cipher-chat/internal/observability"
	"cipher-chat/internal/rabbitmq"
	"cipher-chat/internal/repositories"
	"cipher-chat/internal/telemetry"
	"cipher-chat/internal/ws"
)

const auditRoutingKey = "audit.chat"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("config.invalid", "err", err)
		os.Exit(2)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("service.exit", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}

	messageRepo, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	publisher := rabbitmq.NewPublisher(rabbitmq.Options{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		AppID:    cfg.ServiceName,
	}, logger)
	observability.SetPublisher(publisher)
	logger.Info("rabbitmq.publisher", "mode", rabbitmq.PublisherMode(publisher), "reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Environment, logger)

	var verifier identity.Verifier = identity.TrustedHeaderVerifier{}
	var tokens *identity.TokenVerifier
	if cfg.AuthSecret != "" {
		tokens = identity.NewTokenVerifier(cfg.AuthSecret)
		verifier = tokens
	} else {
		logger.Warn("auth.trusted_header", "reason", "empty auth secret")
	}

	hub := ws.NewHub(logger)
	deliverySvc := delivery.NewService(messageRepo, hub, audit, logger, delivery.Config{
		MaxTextLength: cfg.MaxTextLength,
		StoreTimeout:  cfg.StoreTimeout,
	})
	eventRouter := ws.NewRouter(hub, deliverySvc, audit, logger)
	chatWS := ws.NewChatWebSocketHandler(hub, eventRouter, verifier, ws.Config{
		SendQueueSize:   cfg.WS.SendQueueSize,
		WriteTimeout:    cfg.WS.WriteTimeout,
		PongWait:        cfg.WS.PongWait,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
		AllowedOrigins:  cfg.WS.AllowedOrigins,
	}, logger)
	messageHandler := handlers.NewMessageHandler(deliverySvc, hub.Registry(), logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestID(),
		observability.HTTPMetricsMiddleware(),
	)

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/ws", chatWS.Handle)
	router.GET("/messages/:user_id", authMiddleware, messageHandler.GetMessages)
	router.POST("/messages/send/:user_id", authMiddleware, messageHandler.SendMessage)
	router.PUT("/messages/edit/:message_id", authMiddleware, messageHandler.EditMessage)
	router.DELETE("/messages/delete/:message_id", authMiddleware, messageHandler.DeleteMessage)
	router.GET("/presence", authMiddleware, messageHandler.Presence)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	handlers.RegisterDebugRoutes(router, audit, handlers.DebugOptions{Enabled: cfg.DebugRoutes, Tokens: tokens})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http.listen", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("grpc.listen", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("service.shutdown", "reason", "signal")
	case runErr = <-errCh:
		logger.Error("service.shutdown", "err", runErr)
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http.shutdown.fail", "err", err)
	}
	hub.Close()
	grpcServer.GracefulStop()
	if err := publisher.Close(); err != nil {
		logger.Warn("rabbitmq.close.fail", "err", err)
	}
	if err := closeStore(); err != nil {
		logger.Warn("store.close.fail", "err", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("tracer.shutdown.fail", "err", err)
	}
	return runErr
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repositories.MessageRepository, func() error, error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Warn("store.memory", "reason", "messages are not persisted")
		return repositories.NewMemoryMessageRepo(), func() error { return nil }, nil
	}

	database, err := db.Connect(ctx, cfg.StoreDriver, cfg.DSN, logger)
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewMessageRepo(database), database.Close, nil
}
