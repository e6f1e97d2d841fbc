package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"coachsim/internal/api/middleware"
	"coachsim/internal/database"
)

// UserHandler serves user listings and lookups.
type UserHandler struct {
	db *gorm.DB
}

// NewUserHandler constructs the user handler.
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// List returns all users. Passwords are never serialized.
func (h *UserHandler) List(c *gin.Context) {
	var users []database.User
	if err := h.db.WithContext(c.Request.Context()).Find(&users).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list users failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, users)
}

// Get returns one user by primary key.
func (h *UserHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid user id")
		return
	}

	var user database.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user "+c.Param("id")+" not found")
			return
		}
		middleware.LoggerFromContext(c).Error("get user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, user)
}

type userSummary struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// ListV2 returns the reduced field projection used by the v2 surface.
func (h *UserHandler) ListV2(c *gin.Context) {
	var users []database.User
	if err := h.db.WithContext(c.Request.Context()).Find(&users).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list users failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	summaries := make([]userSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, userSummary{ID: u.ID, Name: u.Name})
	}
	c.JSON(http.StatusOK, summaries)
}
