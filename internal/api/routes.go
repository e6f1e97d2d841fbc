package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"coachsim/internal/agent"
	"coachsim/internal/api/middleware"
	"coachsim/internal/auth"
	"coachsim/internal/config"
	"coachsim/internal/storage"
	"coachsim/internal/voice"
)

// Deps bundles everything the route handlers need.
type Deps struct {
	DB          *gorm.DB
	AuthService *auth.Service
	Redis       redis.UniversalClient
	AsynqClient *asynq.Client
	Storage     *storage.Client
	Bridge      *agent.Bridge
	Logger      *slog.Logger
	ClamdAddr   string
	Stripe      config.StripeConfig
	Voice       voice.SessionFactory
}

// RegisterRoutes registers the versioned API surface.
func RegisterRoutes(router *gin.Engine, deps Deps) {
	authHandler := NewAuthHandler(deps.DB, deps.AuthService, deps.Redis, deps.Logger)
	userHandler := NewUserHandler(deps.DB)
	itemHandler := NewItemHandler(deps.DB)
	scenarioHandler := NewScenarioHandler(deps.DB, deps.Storage, deps.Logger, deps.ClamdAddr)
	simulationHandler := NewSimulationHandler(deps.DB, deps.AsynqClient, deps.Logger)
	promptHandler := NewPromptHandler(deps.Bridge, deps.Logger)
	stripeHandler := NewStripeHandler(deps.Stripe, deps.Logger)
	voiceHandler := NewVoiceHandler(deps.Voice, deps.AuthService, deps.Logger)

	authMiddleware := middleware.AuthMiddleware(deps.AuthService)

	v1 := router.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		usersGroup := v1.Group("/users")
		usersGroup.Use(authMiddleware)
		{
			usersGroup.GET("", userHandler.List)
			usersGroup.GET("/:id", userHandler.Get)
		}

		itemsGroup := v1.Group("/items")
		itemsGroup.Use(authMiddleware)
		{
			itemsGroup.GET("", itemHandler.List)
			itemsGroup.POST("", itemHandler.Create)
			itemsGroup.GET("/:id", itemHandler.Get)
			itemsGroup.PUT("/:id", itemHandler.Update)
			itemsGroup.DELETE("/:id", itemHandler.Delete)
		}

		scenariosGroup := v1.Group("/scenarios")
		scenariosGroup.Use(authMiddleware)
		{
			scenariosGroup.POST("", scenarioHandler.Create)
			scenariosGroup.GET("", scenarioHandler.List)
			scenariosGroup.GET("/:id", scenarioHandler.Get)
			scenariosGroup.POST("/:id/files", scenarioHandler.UploadFile)
			scenariosGroup.GET("/:id/files", scenarioHandler.ListFiles)
			scenariosGroup.GET("/:id/files/:fileId/content", scenarioHandler.DownloadFile)
		}

		simulationGroup := v1.Group("/simulation")
		simulationGroup.Use(authMiddleware)
		{
			simulationGroup.POST("", simulationHandler.Create)
			simulationGroup.GET("", simulationHandler.List)
			simulationGroup.GET("/:id", simulationHandler.Get)
			simulationGroup.PATCH("/:id", simulationHandler.Update)
		}

		aiGroup := v1.Group("/ai")
		{
			aiGroup.POST("/run-prompt", authMiddleware, promptHandler.RunPrompt)
			aiGroup.GET("/voice", voiceHandler.HandleConnection)
		}

		stripeGroup := v1.Group("/stripe")
		{
			stripeGroup.POST("/create-payment-intent", authMiddleware, stripeHandler.CreatePaymentIntent)
			// Webhook authenticates via the Stripe-Signature header, not a bearer token.
			stripeGroup.POST("/webhook", stripeHandler.Webhook)
		}
	}

	v2 := router.Group("/v2")
	{
		v2.GET("/users", authMiddleware, userHandler.ListV2)
	}
}
