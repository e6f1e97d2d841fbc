package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"coachsim/internal/agent"
	"coachsim/internal/api/middleware"
)

// PromptHandler exposes the agent bridge as a blocking HTTP endpoint.
type PromptHandler struct {
	bridge *agent.Bridge
	logger *slog.Logger
}

// NewPromptHandler constructs the prompt handler.
func NewPromptHandler(bridge *agent.Bridge, logger *slog.Logger) *PromptHandler {
	return &PromptHandler{bridge: bridge, logger: logger}
}

type runPromptRequest struct {
	Prompt        string   `json:"prompt"`
	SessionID     string   `json:"sessionId"`
	SystemContext string   `json:"systemContext"`
	FileURLs      []string `json:"fileUrls"`
	ActionGroups  []string `json:"actionGroups"`
}

type runPromptResponse struct {
	SessionID  string `json:"sessionId"`
	Completion string `json:"completion"`
}

// RunPrompt runs one prompt against the agent and returns the assembled
// completion. Streaming happens upstream; the client gets the final text.
func (h *PromptHandler) RunPrompt(c *gin.Context) {
	var req runPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	logger := middleware.LoggerFromContext(c).With(slog.String("session_id", req.SessionID))

	completion, err := h.bridge.Run(c.Request.Context(), agent.Request{
		SystemContext: req.SystemContext,
		Prompt:        req.Prompt,
		SessionID:     req.SessionID,
		FileURLs:      req.FileURLs,
		ActionGroups:  req.ActionGroups,
	})
	if err != nil {
		if errors.Is(err, agent.ErrMissingPrompt) || errors.Is(err, agent.ErrMissingSessionID) {
			BadRequest(c, err.Error())
			return
		}

		var streamErr *agent.StreamException
		if errors.As(err, &streamErr) {
			logger.Error("agent stream exception",
				slog.String("kind", string(streamErr.Kind)),
				slog.String("message", streamErr.Message),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "agent_invocation_failed",
				"detail": streamErr.Message,
			})
			return
		}

		var invErr *agent.InvocationError
		if errors.As(err, &invErr) {
			logger.Error("agent invocation failed",
				slog.String("name", invErr.Name),
				slog.String("message", invErr.Message),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "agent_invocation_failed",
				"detail": invErr.Message,
			})
			return
		}

		logger.Error("run prompt failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, runPromptResponse{
		SessionID:  req.SessionID,
		Completion: completion,
	})
}
