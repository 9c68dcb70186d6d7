package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/config"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/transport/http/handlers"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/transport/http/middleware"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	QrLogin *usecase.QrLoginService
	Roles   *usecase.RoleService
	Tokens  *usecase.TokenService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config != nil && deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	if deps.Config != nil && len(deps.Config.App.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	}
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	authMiddleware := middleware.RequireAuth(deps.Services.Tokens)

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		qrHandler := handlers.NewQrLoginHandler(deps.Services.QrLogin)

		qrGroup := api.Group("/qr/login")
		qrGroup.POST("/generate", append(limitMiddlewares(deps, "qr_generate_ip", rateLimitFor(deps).GenerateMaxPerIP), qrHandler.Generate)...)
		qrGroup.GET("/status/:token", qrHandler.Status)
		qrGroup.POST("/scan", append(limitMiddlewares(deps, "qr_scan_ip", rateLimitFor(deps).ScanMaxPerIP), authMiddleware, qrHandler.Scan)...)
		qrGroup.POST("/confirm", append(limitMiddlewares(deps, "qr_confirm_ip", rateLimitFor(deps).ConfirmMaxPerIP), authMiddleware, qrHandler.Confirm)...)
		qrGroup.POST("/confirm-role", append(limitMiddlewares(deps, "qr_confirm_ip", rateLimitFor(deps).ConfirmMaxPerIP), authMiddleware, qrHandler.ConfirmRole)...)

		authHandler := handlers.NewAuthHandler(deps.Services.QrLogin, deps.Services.Tokens)
		api.POST("/auth/session", authHandler.ExchangeSession)

		if deps.Services.Roles != nil {
			roleHandler := handlers.NewRoleHandler(deps.Services.Roles)
			api.GET("/roles", roleHandler.List)
			api.GET("/roles/:code", roleHandler.Get)
			api.GET("/users/:id/roles", authMiddleware, roleHandler.ListForUser)
		}
	}

	return r
}

func rateLimitFor(deps Dependencies) config.RateLimitSettings {
	if deps.Config == nil {
		return config.RateLimitSettings{}
	}
	return deps.Config.RateLimit
}

func limitMiddlewares(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := rateLimitFor(deps).WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.Limit(rule)}
}
