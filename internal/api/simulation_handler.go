package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"coachsim/internal/api/middleware"
	"coachsim/internal/database"
	"coachsim/internal/tasks"
)

// taskEnqueuer is the slice of *asynq.Client the handler uses.
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SimulationHandler serves simulation runs of scenarios.
type SimulationHandler struct {
	db     *gorm.DB
	tasks  taskEnqueuer
	logger *slog.Logger
}

// NewSimulationHandler constructs the simulation handler. enqueuer may be nil,
// which disables evaluation task dispatch.
func NewSimulationHandler(db *gorm.DB, enqueuer taskEnqueuer, logger *slog.Logger) *SimulationHandler {
	return &SimulationHandler{db: db, tasks: enqueuer, logger: logger}
}

type createSimulationRequest struct {
	ScenarioID      uint   `json:"scenarioId" binding:"required"`
	InteractionMode string `json:"interactionMode"`
}

// Create starts a new simulation for the authenticated user.
func (h *SimulationHandler) Create(c *gin.Context) {
	var req createSimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "authentication required")
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var scenario database.Scenario
	if err := h.db.WithContext(ctx).First(&scenario, req.ScenarioID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "scenario "+strconv.FormatUint(uint64(req.ScenarioID), 10)+" not found")
			return
		}
		logger.Error("scenario lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	mode := req.InteractionMode
	if mode == "" {
		mode = "chat"
	}

	simulation := database.Simulation{
		Status:          database.SimulationStatusCreated,
		InteractionMode: mode,
		ScenarioID:      scenario.ID,
		UserID:          userID,
		ChatMessages:    datatypes.NewJSONSlice([]database.ChatMessage{}),
	}

	if err := h.db.WithContext(ctx).Create(&simulation).Error; err != nil {
		logger.Error("create simulation failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusCreated, simulation)
}

// List returns simulations newest-first, optionally filtered by scenario.
func (h *SimulationHandler) List(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Order("created_at DESC")

	if raw := c.Query("scenarioId"); raw != "" {
		scenarioID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			BadRequest(c, "invalid scenarioId filter")
			return
		}
		query = query.Where("scenario_id = ?", scenarioID)
	}

	var simulations []database.Simulation
	if err := query.Find(&simulations).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list simulations failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, simulations)
}

// Get returns one simulation by primary key.
func (h *SimulationHandler) Get(c *gin.Context) {
	simulation, ok := h.loadSimulation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, simulation)
}

type updateSimulationRequest struct {
	Status       *string                    `json:"status"`
	ChatMessages *[]database.ChatMessage    `json:"chatMessages"`
	Result       *database.SimulationResult `json:"simulationResult"`
}

// Update applies partial-field semantics. Transitioning the status to
// completed enqueues the evaluation task.
func (h *SimulationHandler) Update(c *gin.Context) {
	simulation, ok := h.loadSimulation(c)
	if !ok {
		return
	}

	var req updateSimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("simulation_id", uint64(simulation.ID)))

	updates := map[string]any{}
	if req.Status != nil {
		switch *req.Status {
		case database.SimulationStatusCreated, database.SimulationStatusRunning, database.SimulationStatusCompleted:
		default:
			BadRequest(c, "invalid status "+*req.Status)
			return
		}
		updates["status"] = *req.Status
	}
	if req.ChatMessages != nil {
		updates["chat_messages"] = datatypes.NewJSONSlice(*req.ChatMessages)
	}
	if req.Result != nil {
		updates["result"] = datatypes.NewJSONType(*req.Result)
	}

	if len(updates) == 0 {
		c.JSON(http.StatusOK, simulation)
		return
	}

	completing := req.Status != nil &&
		*req.Status == database.SimulationStatusCompleted &&
		simulation.Status != database.SimulationStatusCompleted

	if err := h.db.WithContext(ctx).Model(&simulation).Updates(updates).Error; err != nil {
		logger.Error("update simulation failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if completing && h.tasks != nil {
		task, err := tasks.NewSimulationEvaluateTask(simulation.ID, middleware.GetCorrelationID(c))
		if err != nil {
			logger.Error("build evaluate task failed", slog.Any("error", err))
		} else if _, err := h.tasks.EnqueueContext(ctx, task); err != nil {
			// Enqueue failure does not fail the update; the status change stands.
			logger.Error("enqueue evaluate task failed", slog.Any("error", err))
		} else {
			logger.Info("evaluation task enqueued")
		}
	}

	c.JSON(http.StatusOK, simulation)
}

func (h *SimulationHandler) loadSimulation(c *gin.Context) (database.Simulation, bool) {
	var simulation database.Simulation

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid simulation id")
		return simulation, false
	}

	if err := h.db.WithContext(c.Request.Context()).First(&simulation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "simulation "+c.Param("id")+" not found")
			return simulation, false
		}
		middleware.LoggerFromContext(c).Error("get simulation failed", slog.Any("error", err))
		Internal(c, "internal error")
		return simulation, false
	}
	return simulation, true
}
