package router

import (
	"net/http"
	"time"

	"github.com/igvedmak/parkspeak/internal/config"
	"github.com/igvedmak/parkspeak/internal/database"
	"github.com/igvedmak/parkspeak/internal/handlers"
	"github.com/igvedmak/parkspeak/internal/services"
	"github.com/igvedmak/parkspeak/internal/utils"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":      "Too many requests. Try again later.",
		"retryAfter": time.Until(info.ResetTime).Round(time.Second).String(),
	})
}

func Setup(log *zap.Logger, manager *services.HearingSessionManager) *gin.Engine {
	cfg := config.Conf.Server

	// Set up a new Gin router, add recovery middleware and request logging.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))
	router.Use(otelgin.Middleware("parkspeak"))

	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "X-Requested-With", RequestIDHeader},
			ExposeHeaders:    []string{RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	secret := cfg.SessionSecret
	if secret == "" {
		generated, err := utils.GenerateSecureToken(32)
		if err != nil {
			log.Fatal("Failed to generate session secret", zap.Error(err))
		}
		log.Warn("No session secret configured; cookies will not survive a restart")
		secret = generated
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Set to true in production
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400,
	})
	router.Use(sessions.Sessions("parkspeak", store))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	})
	router.Use(func(c *gin.Context) {
		err := secureMiddleware.Process(c.Writer, c.Request)
		if err != nil {
			c.Abort()
			return
		}
	})

	// Handlers and routes
	hearingHandler := handlers.NewHearingHandler(log, manager)
	resultsHandler := handlers.NewResultsHandler(log)
	speechHandler := handlers.NewSpeechHandler(log)

	createLimit := cfg.CreateLimit
	if createLimit <= 0 {
		createLimit = 10
	}
	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: uint(createLimit),
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/healthz", healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		tests := api.Group("/hearing-tests")
		{
			tests.POST("", limiter, hearingHandler.Create)
			tests.GET("/current", hearingHandler.Current)

			byID := tests.Group("/:id")
			byID.Use(ValidTestID())
			{
				byID.GET("", hearingHandler.Get)
				byID.POST("/ambient-check", hearingHandler.BeginAmbientCheck)
				byID.POST("/ambient", hearingHandler.SubmitAmbient)
				byID.POST("/responses", hearingHandler.Respond)
				byID.DELETE("", hearingHandler.Discard)
			}
		}

		results := api.Group("/hearing-results")
		{
			results.GET("", resultsHandler.List)
			results.GET("/latest", resultsHandler.Latest)
			results.GET("/chart", resultsHandler.Chart)
			results.GET("/:id", ValidTestID(), resultsHandler.Get)
		}

		speechRoutes := api.Group("/speech")
		{
			speechRoutes.POST("/intelligibility", speechHandler.Intelligibility)
			speechRoutes.POST("/difficulty", speechHandler.Difficulty)
		}
	}

	return router
}

func healthz(c *gin.Context) {
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
