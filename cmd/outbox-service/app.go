package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	"edihub/internal/archive"
	"edihub/internal/config"
	"edihub/internal/constants"
	"edihub/internal/delegation"
	"edihub/internal/document"
	"edihub/internal/logger"
	"edihub/internal/outbox"
	"edihub/pkg/bootstrap"
	"edihub/pkg/health"
	"edihub/pkg/metrics"
	"edihub/pkg/middleware"
	"edihub/pkg/migrations"
	"edihub/pkg/ratelimit"
	"edihub/pkg/tracing"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redis          *redis.Client
	mongoClient    *mongo.Client
	service        *outbox.Service
	scheduler      *outbox.Scheduler
	router         *gin.Engine
	server         *http.Server
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("outbox-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.InitBroker("outbox-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initService(ctx); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "outbox-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterOutboxMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds * time.Second,
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("postgres configuration is required")
	}
	a.db = db

	if a.Config.Database.RunMigrations {
		if err := migrations.RunPostgres(db, "file://migrations/postgres"); err != nil {
			return err
		}
		a.Logger.Info("Database migrations applied")
	}

	if a.Config.Database.Redis.Host != "" {
		rdb, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return err
		}
		a.redis = rdb
	}

	if a.Config.Database.MongoDB.URI != "" {
		mongoClient, err := a.dbConnector.InitMongoDB(ctx)
		if err != nil {
			return err
		}
		a.mongoClient = mongoClient
	}

	return nil
}

func (a *App) initService(ctx context.Context) error {
	store := outbox.NewPostgresStore(a.db)

	overrides := make([]outbox.PolicyOverride, 0, len(a.Config.Outbox.Bundling))
	for _, o := range a.Config.Outbox.Bundling {
		overrides = append(overrides, outbox.PolicyOverride{
			DocumentType:   outbox.DocumentType(o.DocumentType),
			MaxSize:        o.MaxSize,
			FlushThreshold: time.Duration(o.FlushThresholdSeconds) * time.Second,
		})
	}
	policies, err := outbox.NewPolicyTable(overrides...)
	if err != nil {
		return err
	}

	archiver, err := a.initArchiver(ctx)
	if err != nil {
		return err
	}

	sender := outbox.Receiver{
		ActorNumber: a.Config.Outbox.Sender.ActorNumber,
		ActorRole:   outbox.ActorRole(a.Config.Outbox.Sender.ActorRole),
	}

	notifier := outbox.NewKafkaNotifier(a.Producer, a.Config.Broker.Kafka.NotificationTopic)

	opts := []outbox.ServiceOption{
		outbox.WithNotifier(notifier),
	}
	if a.Config.Delegation.Enabled {
		var delegationRepo delegation.Repository = delegation.NewRepository(a.db)
		if a.Config.CircuitBreaker.Enabled {
			delegationRepo = delegation.NewCircuitBreakerRepository(delegationRepo, a.Config.CircuitBreaker)
			a.Logger.Info("Circuit breaker enabled for delegation repository")
		}
		opts = append(opts, outbox.WithDelegation(delegation.NewResolver(delegationRepo, true, a.Logger)))
	}
	if a.Config.Idempotency.Enabled && a.redis != nil {
		idemCfg := a.Config.Idempotency
		if idemCfg.TTLSeconds == 0 {
			idemCfg.TTLSeconds = constants.DefaultIdempotencyTTLSeconds
		}
		opts = append(opts, outbox.WithIdempotencyGuard(
			outbox.NewRedisIdempotencyGuard(a.redis, idemCfg, a.Logger),
		))
	}

	a.service = outbox.NewService(store, policies, document.NewFactory(), archiver, sender, a.Logger, opts...)

	interval := time.Duration(a.Config.Outbox.SchedulerIntervalSeconds) * time.Second
	if a.Config.Outbox.SchedulerIntervalSeconds == 0 {
		interval = constants.DefaultSchedulerIntervalSeconds * time.Second
	}
	concurrency := a.Config.Outbox.SchedulerConcurrency
	if concurrency == 0 {
		concurrency = constants.DefaultSchedulerConcurrency
	}
	a.scheduler = outbox.NewScheduler(store, policies, a.Logger, interval, concurrency,
		outbox.WithSchedulerNotifier(notifier),
	)

	return nil
}

func (a *App) initArchiver(ctx context.Context) (outbox.Archiver, error) {
	if a.mongoClient == nil {
		return nil, fmt.Errorf("mongodb configuration is required for document archiving")
	}

	dbName := a.Config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	store := archive.NewMongoStore(a.mongoClient.Database(dbName), a.Config.Database.MongoDB.Collection)

	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure archive indexes: %w", err)
	}
	return store, nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("outbox-service"))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.Config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.Config.RateLimit.RPS,
			Burst:           a.Config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.Logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	handler := outbox.NewHandler(a.service, a.Logger)
	handler.RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}
	if len(a.Config.Broker.Kafka.Brokers) > 0 {
		healthRegistry.Register(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.scheduler.Run(gCtx)
		return nil
	})

	inputTopic := a.Config.Broker.Kafka.InputTopic
	if inputTopic == "" {
		inputTopic = constants.DefaultInputTopic
	}
	g.Go(func() error {
		return a.Consumer.Consume(gCtx, inputTopic, a.service.IntakeHandler())
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.Background())
	})

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down outbox service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
