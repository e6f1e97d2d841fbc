package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"coachsim/internal/agent"
	"coachsim/internal/database"
	"coachsim/internal/tasks"
)

// agentRunner is the slice of *agent.Bridge the worker uses.
type agentRunner interface {
	Run(ctx context.Context, req agent.Request) (string, error)
}

// EvaluateTaskHandler consumes simulation evaluation tasks: it replays the
// transcript to the agent and stores the resulting competency evaluation.
type EvaluateTaskHandler struct {
	db     *gorm.DB
	runner agentRunner
	logger *slog.Logger
}

// NewEvaluateTaskHandler constructs the evaluation task handler.
func NewEvaluateTaskHandler(db *gorm.DB, runner agentRunner, logger *slog.Logger) *EvaluateTaskHandler {
	return &EvaluateTaskHandler{db: db, runner: runner, logger: logger}
}

// ProcessTask implements asynq.Handler.
func (h *EvaluateTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.SimulationEvaluatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("simulation_id", uint64(payload.SimulationID)),
	)
	log.Info("starting simulation evaluation task")

	var simulation database.Simulation
	if err := h.db.WithContext(ctx).First(&simulation, payload.SimulationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("simulation not found, skipping task")
			return nil
		}
		log.Error("query simulation failed", slog.Any("error", err))
		return err
	}

	var scenario database.Scenario
	if err := h.db.WithContext(ctx).First(&scenario, simulation.ScenarioID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("scenario not found, skipping task")
			return nil
		}
		log.Error("query scenario failed", slog.Any("error", err))
		return err
	}

	completion, err := h.runner.Run(ctx, agent.Request{
		SessionID:     fmt.Sprintf("evaluation-%d", simulation.ID),
		SystemContext: evaluationSystemContext(scenario),
		Prompt:        evaluationPrompt(simulation),
	})
	if err != nil {
		log.Error("evaluation invocation failed", slog.Any("error", err))
		return err
	}

	result := parseEvaluation(completion)
	update := map[string]any{
		"result": datatypes.NewJSONType(result),
	}
	if err := h.db.WithContext(ctx).Model(&simulation).Updates(update).Error; err != nil {
		log.Error("update simulation result failed", slog.Any("error", err))
		return err
	}

	log.Info("simulation evaluation task completed",
		slog.Int("competency_count", len(result.CompetencyEvaluations)),
	)
	return nil
}

// evaluationSystemContext frames the agent as an evaluator of the scenario's
// target competencies.
func evaluationSystemContext(scenario database.Scenario) string {
	var sb strings.Builder
	sb.WriteString("You are evaluating a coaching conversation. Score each target competency from 1 to 5 and give general feedback.\n")
	sb.WriteString("Respond with JSON: {\"competencyEvaluations\":[{\"competency\":string,\"score\":int,\"feedback\":string}],\"generalFeedback\":string}.\n")

	framework := scenario.CoachingFramework.Data()
	if framework.Name != "" {
		sb.WriteString("Coaching framework: " + framework.Name + "\n")
	}
	if goals := scenario.CompetenciesAndGoals; len(goals) > 0 {
		sb.WriteString("Target competencies: " + strings.Join(goals, ", ") + "\n")
	}
	return sb.String()
}

// evaluationPrompt serializes the transcript for the agent.
func evaluationPrompt(simulation database.Simulation) string {
	var sb strings.Builder
	sb.WriteString("Evaluate the following conversation transcript:\n")
	for _, msg := range simulation.ChatMessages {
		sb.WriteString(msg.Role + ": " + msg.Content + "\n")
	}
	return sb.String()
}

// parseEvaluation decodes the agent's JSON answer. A completion that is not
// valid JSON is kept verbatim as general feedback rather than discarded.
func parseEvaluation(completion string) database.SimulationResult {
	trimmed := strings.TrimSpace(completion)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var result database.SimulationResult
	if err := json.Unmarshal([]byte(trimmed), &result); err != nil {
		return database.SimulationResult{GeneralFeedback: completion}
	}
	return result
}
