package database

import (
	"time"

	"gorm.io/datatypes"
)

// User represents an account that can log in and run simulations.
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Name      string    `gorm:"size:255" json:"name"`
	Email     string    `gorm:"uniqueIndex;size:255" json:"email"`
	Password  string    `gorm:"size:255" json:"-"`
}

// Item is a simple demo entity with full CRUD.
type Item struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Name        string    `gorm:"size:255" json:"name"`
	Description string    `gorm:"size:1024" json:"description"`
}

// Persona describes the simulated counterpart the user coaches.
type Persona struct {
	Name               string `json:"name"`
	Role               string `json:"role"`
	Disposition        string `json:"disposition"`
	Background         string `json:"background"`
	CommunicationStyle string `json:"communicationStyle"`
	EmotionalState     string `json:"emotionalState"`
	Avatar             string `json:"avatar,omitempty"`
	AvatarURL          string `json:"avatarUrl,omitempty"`
}

// CoachingFramework names the methodology a scenario is built around.
type CoachingFramework struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Scenario is a coaching exercise definition. List-valued and nested fields
// are stored as JSONB columns.
type Scenario struct {
	ID                   uint                                  `gorm:"primarykey" json:"id"`
	CreatedAt            time.Time                             `json:"createdAt"`
	UpdatedAt            time.Time                             `json:"updatedAt"`
	ScenarioType         string                                `gorm:"size:255" json:"scenarioType"`
	KeyTopics            datatypes.JSONSlice[string]           `gorm:"type:jsonb" json:"keyTopics"`
	CompetenciesAndGoals datatypes.JSONSlice[string]           `gorm:"type:jsonb" json:"competenciesAndGoals"`
	Guidelines           datatypes.JSONSlice[string]           `gorm:"type:jsonb" json:"guidelines"`
	CoachingFramework    datatypes.JSONType[CoachingFramework] `gorm:"type:jsonb" json:"coachingFramework"`
	SupportingMaterials  datatypes.JSONSlice[string]           `gorm:"type:jsonb" json:"supportingMaterials"`
	Persona              datatypes.JSONType[Persona]           `gorm:"type:jsonb" json:"persona"`
}

// ScenarioFile is a binary attachment of a scenario. Content lives in object
// storage under Path; Base64 is only populated for legacy inline records and
// is cleared once content is externalized.
type ScenarioFile struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	ScenarioID uint      `gorm:"index;not null" json:"scenarioId"`
	Path       string    `gorm:"size:512" json:"path"`
	Base64     *string   `json:"base64"`
}

// ChatMessage is a single turn in a simulation transcript.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompetencyEvaluation scores one competency observed in a simulation.
type CompetencyEvaluation struct {
	Competency string `json:"competency"`
	Score      int    `json:"score"`
	Feedback   string `json:"feedback"`
}

// SimulationResult is the evaluation produced after a simulation completes.
type SimulationResult struct {
	CompetencyEvaluations []CompetencyEvaluation `json:"competencyEvaluations"`
	GeneralFeedback       string                 `json:"generalFeedback"`
}

// Simulation is one run of a scenario by a user.
type Simulation struct {
	ID              uint                                 `gorm:"primarykey" json:"id"`
	CreatedAt       time.Time                            `json:"createdAt"`
	UpdatedAt       time.Time                            `json:"updatedAt"`
	Status          string                               `gorm:"size:64" json:"status"`
	InteractionMode string                               `gorm:"size:64" json:"interactionMode"`
	ScenarioID      uint                                 `gorm:"index;not null" json:"scenarioId"`
	UserID          uint                                 `gorm:"index;not null" json:"userId"`
	ChatMessages    datatypes.JSONSlice[ChatMessage]     `gorm:"type:jsonb" json:"chatMessages"`
	Result          datatypes.JSONType[SimulationResult] `gorm:"type:jsonb" json:"simulationResult"`
}

// Simulation status values.
const (
	SimulationStatusCreated   = "created"
	SimulationStatusRunning   = "running"
	SimulationStatusCompleted = "completed"
)
