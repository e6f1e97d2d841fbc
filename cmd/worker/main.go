package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/hibiken/asynq"

	"coachsim/internal/agent"
	"coachsim/internal/config"
	"coachsim/internal/database"
	"coachsim/internal/metrics"
	"coachsim/internal/storage"
	"coachsim/internal/tasks"
	"coachsim/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	state := database.WaitReady(context.Background(), db, cfg.Database.Retries, cfg.Database.RetryDelay, logger)
	if !state.Available {
		log.Fatalf("database unreachable after %d attempts", state.Attempts)
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	invoker, err := newInvoker(cfg.Agent)
	if err != nil {
		log.Fatalf("init agent invoker: %v", err)
	}
	bridge := agent.NewBridge(invoker, storageClient, logger)

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}, asynq.Config{
		Concurrency: 10,
	})

	evaluateHandler := worker.NewEvaluateTaskHandler(db, bridge, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeSimulationEvaluate, evaluateHandler)

	logger.Info("worker service started", slog.String("redis_addr", cfg.Redis.Addr()))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
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
