package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jishnu70/Chat-app-backend/internal/config"
	"github.com/jishnu70/Chat-app-backend/internal/db"
	"github.com/jishnu70/Chat-app-backend/internal/handlers"
	"github.com/jishnu70/Chat-app-backend/internal/history"
	"github.com/jishnu70/Chat-app-backend/internal/identity"
	"github.com/jishnu70/Chat-app-backend/internal/middleware"
	"github.com/jishnu70/Chat-app-backend/internal/observability"
	"github.com/jishnu70/Chat-app-backend/internal/rabbitmq"
	"github.com/jishnu70/Chat-app-backend/internal/repositories"
	"github.com/jishnu70/Chat-app-backend/internal/telemetry"
	"github.com/jishnu70/Chat-app-backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	database, err := db.Connect(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment, logger)
	events := observability.NewEvents(publisher, metrics)

	userRepo := repositories.NewUserRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	verifier := identity.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	resolver := identity.NewResolver(userRepo)

	registry := ws.NewRegistry()
	router := ws.NewRouter(registry, ws.RouterConfig{
		SendTimeout: cfg.WSSendTimeout,
		Concurrency: cfg.WSFanoutConcurrency,
	}, logger, metrics, events)
	sessions := ws.NewSessionHandler(ws.SessionDeps{
		Registry: registry,
		Router:   router,
		Verifier: verifier,
		Resolver: resolver,
		Users:    userRepo,
		Groups:   groupRepo,
		Messages: messageRepo,
		Logger:   logger,
		Metrics:  metrics,
		Events:   events,
	}, ws.SessionConfig{
		SendTimeout:    cfg.WSSendTimeout,
		PongWait:       cfg.WSPongWait,
		PingPeriod:     cfg.WSPingPeriod,
		MaxMessageSize: cfg.WSMaxMessageSize,
		AllowedOrigins: cfg.Origins(),
	})

	aggregator := history.NewAggregator(userRepo, groupRepo, messageRepo, logger)
	userHandler := handlers.NewUserHandler(userRepo, audit, logger)
	groupHandler := handlers.NewGroupHandler(groupRepo, messageRepo, router, audit, logger)
	chatHandler := handlers.NewChatHandler(aggregator, userRepo, messageRepo, logger)
	mediaHandler := handlers.NewMediaHandler(cfg.UploadDir, cfg.MaxUploadBytes, logger)

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		metrics.HTTPMetricsMiddleware(),
		observability.AccessLog(logger),
	)

	engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	engine.Static(handlers.MediaPrefix, cfg.UploadDir)

	authMiddleware := middleware.Authenticate(verifier, resolver, logger)

	engine.POST("/users", middleware.VerifyCredential(verifier), userHandler.Register)
	engine.GET("/users/me", authMiddleware, userHandler.Me)

	engine.POST("/groups", authMiddleware, groupHandler.CreateGroup)
	engine.GET("/groups", authMiddleware, groupHandler.ListGroups)
	engine.POST("/groups/:group_id/members", authMiddleware, groupHandler.AddMember)
	engine.GET("/groups/:group_id/messages", authMiddleware, groupHandler.GetGroupMessages)
	engine.POST("/groups/:group_id/messages", authMiddleware, groupHandler.PostGroupMessage)

	engine.GET("/chats", authMiddleware, chatHandler.ListChats)
	engine.GET("/chats/:user_id/messages", authMiddleware, chatHandler.GetChatMessages)

	engine.POST("/media", authMiddleware, mediaHandler.Upload)

	engine.GET("/ws/chats/:user_id", sessions.HandleDirect)
	engine.GET("/ws/groups/:group_id", sessions.HandleGroup)

	handlers.RegisterDebugRoutes(engine, audit, registry, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, health := observability.NewHealthServer(cfg.ServiceName, metrics)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		health.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sessions.Shutdown(shutdownCtx); err != nil {
			logger.Warn("websocket sessions did not close in time", zap.Error(err))
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})
	return g.Wait()
}
