package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"coachsim/internal/agent"
	"coachsim/internal/api"
	"coachsim/internal/auth"
	"coachsim/internal/config"
	"coachsim/internal/database"
	"coachsim/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	logger.Info("api bootstrapping",
		slog.String("db_host", cfg.Database.Host),
		slog.Int("db_port", cfg.Database.Port),
		slog.String("db_name", cfg.Database.Name),
	)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	state := database.WaitReady(context.Background(), db, cfg.Database.Retries, cfg.Database.RetryDelay, logger)
	if state.Available {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("migrate database: %v", err)
		}
		logger.Info("database migrated")
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	invoker, err := newInvoker(cfg.Agent)
	if err != nil {
		log.Fatalf("init agent invoker: %v", err)
	}
	bridge := agent.NewBridge(invoker, storageClient, logger)

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	router := api.NewRouter(logger, func() bool { return state.Available })
	api.RegisterRoutes(router, api.Deps{
		DB:          db,
		AuthService: authService,
		Redis:       redisClient,
		AsynqClient: asynqClient,
		Storage:     storageClient,
		Bridge:      bridge,
		Logger:      logger,
		ClamdAddr:   cfg.Clamd.Addr,
		Stripe:      cfg.Stripe,
		// No speech backend is wired yet; the voice endpoint answers 503
		// until a voice.SessionFactory implementation is configured.
		Voice: nil,
	})

	address := fmt.Sprintf(":%d", cfg.API.Port)
	logger.Info("api listening", slog.String("address", address), slog.Bool("database_available", state.Available))

	if err := router.Run(address); err != nil {
		log.Fatalf("start api server: %v", err)
	}
}

// newInvoker selects the agent transport from configuration.
func newInvoker(cfg config.AgentConfig) (agent.Invoker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "azure":
		return agent.NewAzureInvoker(cfg.AzureEndpoint, cfg.AzureDeployment, cfg.AzureAPIKey), nil
	case "bedrock":
		return agent.NewBedrockInvoker(context.Background(), cfg.AWSRegion, cfg.BedrockAgentID, cfg.BedrockAgentAliasID)
	default:
		return nil, fmt.Errorf("unknown agent provider %q", cfg.Provider)
	}
}
