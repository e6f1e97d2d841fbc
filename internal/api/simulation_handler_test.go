package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"coachsim/internal/api/middleware"
	"coachsim/internal/database"
	"coachsim/internal/tasks"
)

type fakeEnqueuer struct {
	enqueued []*asynq.Task
	err      error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.enqueued = append(f.enqueued, task)
	return &asynq.TaskInfo{}, nil
}

func newSimulationRouter(db *gorm.DB, enqueuer taskEnqueuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSimulationHandler(db, enqueuer, nil)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, uint(1))
	})
	router.POST("/v1/simulation", h.Create)
	router.GET("/v1/simulation", h.List)
	router.GET("/v1/simulation/:id", h.Get)
	router.PATCH("/v1/simulation/:id", h.Update)
	return router
}

func TestCreateSimulation(t *testing.T) {
	db := newTestDB(t)
	router := newSimulationRouter(db, &fakeEnqueuer{})
	scenario := seedScenario(t, db)

	rec := performJSON(t, router, http.MethodPost, "/v1/simulation", map[string]any{
		"scenarioId": scenario.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var created database.Simulation
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Status != database.SimulationStatusCreated {
		t.Fatalf("status = %q, want %q", created.Status, database.SimulationStatusCreated)
	}
	if created.UserID != 1 {
		t.Fatalf("user id = %d, want claim user 1", created.UserID)
	}
	if created.InteractionMode != "chat" {
		t.Fatalf("interaction mode = %q, want default chat", created.InteractionMode)
	}
}

func TestCreateSimulation_ScenarioNotFound(t *testing.T) {
	db := newTestDB(t)
	router := newSimulationRouter(db, &fakeEnqueuer{})

	rec := performJSON(t, router, http.MethodPost, "/v1/simulation", map[string]any{
		"scenarioId": 99,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListSimulations_FiltersByScenario(t *testing.T) {
	db := newTestDB(t)
	router := newSimulationRouter(db, &fakeEnqueuer{})
	first := seedScenario(t, db)
	second := seedScenario(t, db)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seeds := []struct {
		scenarioID uint
		createdAt  time.Time
	}{
		{first.ID, base},
		{first.ID, base.Add(2 * time.Hour)},
		{second.ID, base.Add(time.Hour)},
		{first.ID, base.Add(time.Hour)},
	}
	for _, seed := range seeds {
		sim := database.Simulation{
			CreatedAt:  seed.createdAt,
			Status:     database.SimulationStatusCreated,
			ScenarioID: seed.scenarioID,
			UserID:     1,
		}
		if err := db.Create(&sim).Error; err != nil {
			t.Fatalf("seed simulation: %v", err)
		}
	}

	rec := performJSON(t, router, http.MethodGet, "/v1/simulation?scenarioId=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var simulations []database.Simulation
	if err := json.Unmarshal(rec.Body.Bytes(), &simulations); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(simulations) != 3 {
		t.Fatalf("len(simulations) = %d, want 3", len(simulations))
	}
	for _, sim := range simulations {
		if sim.ScenarioID != first.ID {
			t.Fatalf("scenario id = %d, want %d", sim.ScenarioID, first.ID)
		}
	}
	for i := 1; i < len(simulations); i++ {
		if simulations[i].CreatedAt.After(simulations[i-1].CreatedAt) {
			t.Fatalf("simulations not newest-first: %v before %v",
				simulations[i-1].CreatedAt, simulations[i].CreatedAt)
		}
	}
}

func TestUpdateSimulation_PartialFields(t *testing.T) {
	db := newTestDB(t)
	router := newSimulationRouter(db, &fakeEnqueuer{})
	scenario := seedScenario(t, db)

	sim := database.Simulation{
		Status:          database.SimulationStatusCreated,
		InteractionMode: "chat",
		ScenarioID:      scenario.ID,
		UserID:          1,
	}
	if err := db.Create(&sim).Error; err != nil {
		t.Fatalf("seed simulation: %v", err)
	}

	rec := performJSON(t, router, http.MethodPatch, "/v1/simulation/1", map[string]any{
		"chatMessages": []map[string]string{
			{"role": "user", "content": "hello"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var stored database.Simulation
	if err := db.First(&stored, sim.ID).Error; err != nil {
		t.Fatalf("reload simulation: %v", err)
	}
	if len(stored.ChatMessages) != 1 || stored.ChatMessages[0].Content != "hello" {
		t.Fatalf("chat messages = %+v, want the patched transcript", stored.ChatMessages)
	}
	if stored.Status != database.SimulationStatusCreated {
		t.Fatalf("status = %q, want untouched %q", stored.Status, database.SimulationStatusCreated)
	}
	if stored.InteractionMode != "chat" {
		t.Fatalf("interaction mode = %q, want untouched chat", stored.InteractionMode)
	}
}

func TestUpdateSimulation_InvalidStatus(t *testing.T) {
	db := newTestDB(t)
	router := newSimulationRouter(db, &fakeEnqueuer{})
	scenario := seedScenario(t, db)

	sim := database.Simulation{Status: database.SimulationStatusCreated, ScenarioID: scenario.ID, UserID: 1}
	if err := db.Create(&sim).Error; err != nil {
		t.Fatalf("seed simulation: %v", err)
	}

	rec := performJSON(t, router, http.MethodPatch, "/v1/simulation/1", map[string]any{
		"status": "finished",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateSimulation_CompletionEnqueuesEvaluation(t *testing.T) {
	db := newTestDB(t)
	enqueuer := &fakeEnqueuer{}
	router := newSimulationRouter(db, enqueuer)
	scenario := seedScenario(t, db)

	sim := database.Simulation{Status: database.SimulationStatusRunning, ScenarioID: scenario.ID, UserID: 1}
	if err := db.Create(&sim).Error; err != nil {
		t.Fatalf("seed simulation: %v", err)
	}

	rec := performJSON(t, router, http.MethodPatch, "/v1/simulation/1", map[string]any{
		"status": database.SimulationStatusCompleted,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	if len(enqueuer.enqueued) != 1 {
		t.Fatalf("enqueued tasks = %d, want 1", len(enqueuer.enqueued))
	}
	task := enqueuer.enqueued[0]
	if task.Type() != tasks.TypeSimulationEvaluate {
		t.Fatalf("task type = %q, want %q", task.Type(), tasks.TypeSimulationEvaluate)
	}

	var payload tasks.SimulationEvaluatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("decode task payload: %v", err)
	}
	if payload.SimulationID != sim.ID {
		t.Fatalf("payload simulation id = %d, want %d", payload.SimulationID, sim.ID)
	}
}

func TestUpdateSimulation_AlreadyCompletedDoesNotReenqueue(t *testing.T) {
	db := newTestDB(t)
	enqueuer := &fakeEnqueuer{}
	router := newSimulationRouter(db, enqueuer)
	scenario := seedScenario(t, db)

	sim := database.Simulation{Status: database.SimulationStatusCompleted, ScenarioID: scenario.ID, UserID: 1}
	if err := db.Create(&sim).Error; err != nil {
		t.Fatalf("seed simulation: %v", err)
	}

	rec := performJSON(t, router, http.MethodPatch, "/v1/simulation/1", map[string]any{
		"status": database.SimulationStatusCompleted,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(enqueuer.enqueued) != 0 {
		t.Fatalf("enqueued tasks = %d, want 0 for a repeat completion", len(enqueuer.enqueued))
	}
}
