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

// ItemHandler implements CRUD for the demo item entity.
type ItemHandler struct {
	db *gorm.DB
}

// NewItemHandler constructs the item handler.
func NewItemHandler(db *gorm.DB) *ItemHandler {
	return &ItemHandler{db: db}
}

type createItemRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type updateItemRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// List returns all items.
func (h *ItemHandler) List(c *gin.Context) {
	var items []database.Item
	if err := h.db.WithContext(c.Request.Context()).Find(&items).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list items failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, items)
}

// Create stores a new item.
func (h *ItemHandler) Create(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	item := database.Item{Name: req.Name, Description: req.Description}
	if err := h.db.WithContext(c.Request.Context()).Create(&item).Error; err != nil {
		middleware.LoggerFromContext(c).Error("create item failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusCreated, item)
}

// Get returns one item by primary key.
func (h *ItemHandler) Get(c *gin.Context) {
	item, ok := h.loadItem(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, item)
}

// Update applies partial-field semantics: only supplied fields change.
func (h *ItemHandler) Update(c *gin.Context) {
	item, ok := h.loadItem(c)
	if !ok {
		return
	}

	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if len(updates) == 0 {
		c.JSON(http.StatusOK, item)
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Model(&item).Updates(updates).Error; err != nil {
		middleware.LoggerFromContext(c).Error("update item failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, item)
}

// Delete removes one item by primary key.
func (h *ItemHandler) Delete(c *gin.Context) {
	item, ok := h.loadItem(c)
	if !ok {
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Delete(&item).Error; err != nil {
		middleware.LoggerFromContext(c).Error("delete item failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ItemHandler) loadItem(c *gin.Context) (database.Item, bool) {
	var item database.Item

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid item id")
		return item, false
	}

	if err := h.db.WithContext(c.Request.Context()).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "item "+c.Param("id")+" not found")
			return item, false
		}
		middleware.LoggerFromContext(c).Error("get item failed", slog.Any("error", err))
		Internal(c, "internal error")
		return item, false
	}
	return item, true
}
