package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"coachsim/internal/api/middleware"
	"coachsim/internal/database"
	"coachsim/internal/storage"
)

// objectUploader is the storage surface the scenario handler needs.
// Satisfied by *storage.Client.
type objectUploader interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GetObject(ctx context.Context, objectKey string) (io.ReadCloser, error)
	ObjectURI(objectKey string) string
}

// scenarioFileResponse augments the stored record with the object URI clients
// pass back as a run-prompt file attachment.
type scenarioFileResponse struct {
	database.ScenarioFile
	URI string `json:"uri,omitempty"`
}

// ScenarioHandler serves coaching scenarios and their file attachments.
type ScenarioHandler struct {
	db        *gorm.DB
	storage   objectUploader
	logger    *slog.Logger
	clamdAddr string
}

// NewScenarioHandler constructs the scenario handler. An empty clamdAddr
// disables virus scanning of uploads.
func NewScenarioHandler(db *gorm.DB, storageClient objectUploader, logger *slog.Logger, clamdAddr string) *ScenarioHandler {
	return &ScenarioHandler{
		db:        db,
		storage:   storageClient,
		logger:    logger,
		clamdAddr: clamdAddr,
	}
}

type createScenarioRequest struct {
	ScenarioType         string                     `json:"scenarioType" binding:"required"`
	KeyTopics            []string                   `json:"keyTopics"`
	CompetenciesAndGoals []string                   `json:"competenciesAndGoals"`
	Guidelines           []string                   `json:"guidelines"`
	CoachingFramework    database.CoachingFramework `json:"coachingFramework"`
	SupportingMaterials  []string                   `json:"supportingMaterials"`
	Persona              database.Persona           `json:"persona"`
}

// Create stores a new scenario.
func (h *ScenarioHandler) Create(c *gin.Context) {
	var req createScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	scenario := database.Scenario{
		ScenarioType:         req.ScenarioType,
		KeyTopics:            datatypes.NewJSONSlice(req.KeyTopics),
		CompetenciesAndGoals: datatypes.NewJSONSlice(req.CompetenciesAndGoals),
		Guidelines:           datatypes.NewJSONSlice(req.Guidelines),
		CoachingFramework:    datatypes.NewJSONType(req.CoachingFramework),
		SupportingMaterials:  datatypes.NewJSONSlice(req.SupportingMaterials),
		Persona:              datatypes.NewJSONType(req.Persona),
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&scenario).Error; err != nil {
		middleware.LoggerFromContext(c).Error("create scenario failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusCreated, scenario)
}

// List returns all scenarios.
func (h *ScenarioHandler) List(c *gin.Context) {
	var scenarios []database.Scenario
	if err := h.db.WithContext(c.Request.Context()).Find(&scenarios).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list scenarios failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, scenarios)
}

// Get returns one scenario by primary key.
func (h *ScenarioHandler) Get(c *gin.Context) {
	scenario, ok := h.loadScenario(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, scenario)
}

type uploadScenarioFileRequest struct {
	Base64 string `json:"base64" binding:"required"`
}

// UploadFile decodes base64 content (optionally a data URL carrying the MIME
// type), externalizes it to object storage and records the storage key. The
// inline base64 column stays null for externalized content.
func (h *ScenarioHandler) UploadFile(c *gin.Context) {
	scenario, ok := h.loadScenario(c)
	if !ok {
		return
	}

	var req uploadScenarioFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	content, contentType, err := decodeBase64Payload(req.Base64)
	if err != nil {
		BadRequest(c, "malformed base64 content")
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("scenario_id", uint64(scenario.ID)))

	if h.clamdAddr != "" {
		if err := h.scanContent(content); err != nil {
			if errors.Is(err, errMaliciousContent) {
				BadRequest(c, "malicious file detected")
				return
			}
			logger.Error("scan file failed", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
	}

	objectKey := fmt.Sprintf("scenarios/%d/%s%s", scenario.ID, uuid.NewString(), extensionFor(contentType))
	if _, err := h.storage.UploadFile(ctx, objectKey, bytes.NewReader(content), int64(len(content)), contentType); err != nil {
		logger.Error("upload scenario file failed", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	file := database.ScenarioFile{
		ScenarioID: scenario.ID,
		Path:       objectKey,
		Base64:     nil,
	}
	if err := h.db.WithContext(ctx).Create(&file).Error; err != nil {
		logger.Error("create scenario file record failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusCreated, scenarioFileResponse{ScenarioFile: file, URI: h.storage.ObjectURI(file.Path)})
}

// ListFiles returns all file records of a scenario.
func (h *ScenarioHandler) ListFiles(c *gin.Context) {
	scenario, ok := h.loadScenario(c)
	if !ok {
		return
	}

	var files []database.ScenarioFile
	if err := h.db.WithContext(c.Request.Context()).Where("scenario_id = ?", scenario.ID).Find(&files).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list scenario files failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	out := make([]scenarioFileResponse, 0, len(files))
	for _, file := range files {
		resp := scenarioFileResponse{ScenarioFile: file}
		if file.Path != "" {
			resp.URI = h.storage.ObjectURI(file.Path)
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

// DownloadFile streams the externalized content of a scenario file.
func (h *ScenarioHandler) DownloadFile(c *gin.Context) {
	scenario, ok := h.loadScenario(c)
	if !ok {
		return
	}

	fileID, err := strconv.ParseUint(c.Param("fileId"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid file id")
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var file database.ScenarioFile
	if err := h.db.WithContext(ctx).Where("scenario_id = ?", scenario.ID).First(&file, fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "file "+c.Param("fileId")+" not found")
			return
		}
		logger.Error("get scenario file failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	obj, err := h.storage.GetObject(ctx, file.Path)
	if err != nil {
		logger.Error("open scenario file content failed", slog.Any("error", err))
		Internal(c, "failed to read file")
		return
	}
	defer obj.Close()

	content, err := io.ReadAll(obj)
	if err != nil {
		if storage.IsNoSuchKey(err) {
			NotFound(c, "file content not found")
			return
		}
		logger.Error("read scenario file content failed", slog.Any("error", err))
		Internal(c, "failed to read file")
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", content)
}

func (h *ScenarioHandler) loadScenario(c *gin.Context) (database.Scenario, bool) {
	var scenario database.Scenario

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid scenario id")
		return scenario, false
	}

	if err := h.db.WithContext(c.Request.Context()).First(&scenario, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "scenario "+c.Param("id")+" not found")
			return scenario, false
		}
		middleware.LoggerFromContext(c).Error("get scenario failed", slog.Any("error", err))
		Internal(c, "internal error")
		return scenario, false
	}
	return scenario, true
}

var errMaliciousContent = errors.New("malicious content detected")

func (h *ScenarioHandler) scanContent(content []byte) error {
	clamdClient := clamd.NewClamd(h.clamdAddr)

	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := clamdClient.ScanStream(bytes.NewReader(content), abortChan)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}
	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return errMaliciousContent
		}
	}
	return nil
}

// decodeBase64Payload decodes plain base64 or a data URL
// ("data:<mime>;base64,<payload>") and returns the content type, defaulting
// to application/octet-stream for plain payloads.
func decodeBase64Payload(raw string) ([]byte, string, error) {
	contentType := "application/octet-stream"
	payload := raw

	if strings.HasPrefix(raw, "data:") {
		rest := strings.TrimPrefix(raw, "data:")
		marker := strings.Index(rest, ";base64,")
		if marker < 0 {
			return nil, "", errors.New("data url without base64 marker")
		}
		if mime := strings.TrimSpace(rest[:marker]); mime != "" {
			contentType = mime
		}
		payload = rest[marker+len(";base64,"):]
	}

	content, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return content, contentType, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "text/plain":
		return ".txt"
	default:
		return ""
	}
}
