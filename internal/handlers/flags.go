package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kitsunehq/kitsune-backend/internal/models"
)

type FlagHandler struct {
	db *gorm.DB
}

func NewFlagHandler(db *gorm.DB) *FlagHandler {
	return &FlagHandler{db: db}
}

// CreateFlag reports a question or answer for moderator review.
func (h *FlagHandler) CreateFlag(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input struct {
		ContentType string `json:"content_type" binding:"required,oneof=question answer"`
		ObjectID    int    `json:"object_id" binding:"required"`
		Reason      string `json:"reason" binding:"required,oneof=spam content_moderation abuse other"`
		Notes       string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The target must exist.
	var err error
	switch input.ContentType {
	case "question":
		err = h.db.First(&models.Question{}, input.ObjectID).Error
	case "answer":
		err = h.db.First(&models.Answer{}, input.ObjectID).Error
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Flagged object not found"})
		return
	}

	flag := models.FlaggedObject{
		ContentType: input.ContentType,
		ObjectID:    input.ObjectID,
		Status:      models.FlagStatusPending,
		Reason:      input.Reason,
		Notes:       input.Notes,
		CreatorID:   userID,
	}

	if err := h.db.Create(&flag).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create flag"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Flag created", "flag": flag})
}

// ListFlags returns flags filtered by status (default pending). Moderator
// only.
func (h *FlagHandler) ListFlags(c *gin.Context) {
	if _, ok := requireModerator(c, h.db); !ok {
		return
	}

	status := c.DefaultQuery("status", models.FlagStatusPending)

	var flags []models.FlaggedObject
	err := h.db.Preload("Creator").
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&flags).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch flags"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"flags": flags})
}

// UpdateFlag accepts or rejects a flag, or assigns it to a moderator.
func (h *FlagHandler) UpdateFlag(c *gin.Context) {
	mod, ok := requireModerator(c, h.db)
	if !ok {
		return
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid flag ID"})
		return
	}

	var flag models.FlaggedObject
	if err := h.db.First(&flag, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Flag not found"})
		return
	}

	var input struct {
		Status string `json:"status" binding:"omitempty,oneof=pending accepted rejected"`
		Assign bool   `json:"assign"`
		Notes  string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]any{}
	if input.Status != "" {
		updates["status"] = input.Status
	}
	if input.Notes != "" {
		updates["notes"] = input.Notes
	}
	if input.Assign {
		updates["assignee_id"] = mod.ID
		updates["assigned_timestamp"] = time.Now().UTC()
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	if err := h.db.Model(&flag).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update flag"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Flag updated", "flag": flag})
}
