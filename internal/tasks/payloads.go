package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeSimulationEvaluate is the task type for post-simulation evaluation.
const TypeSimulationEvaluate = "simulation:evaluate"

// SimulationEvaluatePayload identifies the simulation to evaluate. The
// correlation ID ties worker logs back to the originating request.
type SimulationEvaluatePayload struct {
	SimulationID  uint   `json:"simulationId"`
	CorrelationID string `json:"correlationId"`
}

// NewSimulationEvaluateTask builds the evaluation task for a simulation.
func NewSimulationEvaluateTask(simulationID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(SimulationEvaluatePayload{
		SimulationID:  simulationID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal evaluate payload: %w", err)
	}
	return asynq.NewTask(TypeSimulationEvaluate, payload, asynq.MaxRetry(3)), nil
}
