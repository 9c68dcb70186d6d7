package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/port"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/config"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/database"
	kafkainfra "github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/kafka"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/logger"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/qrcode"
	redisinfra "github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/redis"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/security"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/telemetry"
	postgresrepo "github.com/LuoXianShengChangetheWorld/brewingMachine/internal/repository/postgres"
	redisrepo "github.com/LuoXianShengChangetheWorld/brewingMachine/internal/repository/redis"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/transport/http/middleware"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/transport/http/routes"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/usecase"
)

type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	kafka     *kafkainfra.Producer
	tracer    *telemetry.TracerProvider
	qrService *usecase.QrLoginService
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if _, err := telemetry.Attach(ctx, cfg); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracer provider: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	jwtManager, err := security.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init jwt manager: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var eventPublisher port.EventPublisher
	var kafkaProducer *kafkainfra.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			kafkaProducer = producer
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "brew:rate-limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	ticketStore := redisrepo.NewTicketRepository(redisClient.Client(), cfg.Redis.TicketPrefix)

	roleService := usecase.NewRoleService(repos.Roles, repos.Users, eventPublisher, log)
	tokenService := usecase.NewTokenService(jwtManager, ticketStore, cfg.JWT.TokenTTL, log)

	qrService := usecase.NewQrLoginService(
		repos.LoginSessions,
		repos.Users,
		roleService,
		qrcode.NewRenderer(cfg.Qr.ImageSize),
		eventPublisher,
		repos.Tx,
		usecase.QrLoginConfig{
			TTL:           cfg.Qr.TTL,
			ContentScheme: cfg.Qr.ContentScheme,
		},
		log,
	)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			QrLogin: qrService,
			Roles:   roleService,
			Tokens:  tokenService,
		},
	})

	return &Application{
		cfg:       cfg,
		engine:    engine,
		logger:    log,
		pool:      pool,
		redis:     redisClient,
		kafka:     kafkaProducer,
		tracer:    tracer,
		qrService: qrService,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.kafka != nil {
			_ = a.kafka.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			_ = a.tracer.Shutdown(context.Background())
		}
	}()

	reapInterval := a.cfg.Qr.ReapInterval
	if reapInterval <= 0 {
		reapInterval = time.Minute
	}
	go a.qrService.RunReaper(ctx, reapInterval)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting brewing machine API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
