package app

import (
	"context"
	"net/http"

	"auth-gateway/internal/auth/callback"
	"auth-gateway/internal/auth/handler"
	"auth-gateway/internal/auth/provider"
	"auth-gateway/internal/auth/resolver"
	"auth-gateway/internal/auth/sessionmgr"
	"auth-gateway/internal/config"
	"auth-gateway/internal/middleware"
	"auth-gateway/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	var opts []sessionmgr.Option
	if infra.DB != nil {
		opts = append(opts, sessionmgr.WithResolver(resolver.NewDBResolver(infra.DB)))
	}

	manager, err := sessionmgr.New(ctx, sessionmgr.Config{
		Region:        cfg.AWSRegion,
		UserPoolID:    cfg.CognitoUserPoolID,
		ClientID:      cfg.CognitoClientID,
		ClientSecret:  cfg.CognitoClientSecret,
		Domain:        cfg.CognitoDomain,
		DeploymentURL: cfg.DeploymentURL,
		SessionTTL:    cfg.SessionTTL,
	}, infra.Cognito, infra.SessionStore(), opts...)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	registry, err := provider.RegistryFromNames(cfg.EnabledProviders)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	return newRouter(cfg, manager, registry), infra.Close, nil
}

func newRouter(cfg config.Config, manager handler.SessionManager, registry *provider.Registry) *gin.Engine {
	callbackCfg := callback.DefaultConfig()
	callbackCfg.GracePeriod = cfg.CallbackGracePeriod
	callbackCfg.FailureDelay = cfg.CallbackFailureDelay

	authHandler := handler.NewHandler(
		manager,
		registry,
		callback.New(manager, callbackCfg),
		handler.Config{
			Cookies:      session.DefaultCookieOptions(),
			SessionTTL:   cfg.SessionTTL,
			LoginRoute:   callbackCfg.LoginRoute,
			FailureDelay: callbackCfg.FailureDelay,
		},
	)

	authMiddleware := middleware.NewAuthMiddleware(manager)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	// ----------------------------
	// Public Routes
	// ----------------------------

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ----------------------------
	// Protected Routes
	// ----------------------------

	requireAuth := middleware.GinRequireAuth(authMiddleware)

	router.GET(callbackCfg.LandingRoute, requireAuth, me)

	api := router.Group("/api")
	api.Use(requireAuth)
	api.GET("/me", me)

	return router
}

func me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
