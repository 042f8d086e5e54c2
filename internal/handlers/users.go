package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kitsunehq/kitsune-backend/internal/models"
)

type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// GetUserProfile returns a user's public profile with their recent questions
// and answers.
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	username := c.Param("username")

	var user models.User
	if err := h.db.Where("username = ? AND is_active = ?", username, true).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var questions []models.Question
	h.db.Where("creator_id = ? AND is_spam = ?", user.ID, false).
		Order("created_at DESC").Limit(20).Find(&questions)

	var answers []models.Answer
	h.db.Where("creator_id = ? AND is_spam = ?", user.ID, false).
		Order("created_at DESC").Limit(20).Find(&answers)

	var solutions int64
	h.db.Model(&models.Question{}).
		Joins("JOIN answers ON answers.id = questions.solution_id").
		Where("answers.creator_id = ?", user.ID).
		Count(&solutions)

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":         user.ID,
			"username":   user.Username,
			"bio":        user.Bio,
			"avatar":     user.Avatar,
			"created_at": user.CreatedAt,
		},
		"questions": questions,
		"answers":   answers,
		"solutions": solutions,
	})
}

// UpdateProfile edits the current user's bio and avatar.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input struct {
		Bio    *string `json:"bio"`
		Avatar *string `json:"avatar"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]any{}
	if input.Bio != nil {
		updates["bio"] = *input.Bio
	}
	if input.Avatar != nil {
		updates["avatar"] = *input.Avatar
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	if err := h.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully"})
}
