package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kitsunehq/kitsune-backend/internal/models"
	"github.com/kitsunehq/kitsune-backend/internal/questions"
)

// Handler combines all handler types
type Handler struct {
	Auth     *AuthHandler
	Question *QuestionHandler
	Answer   *AnswerHandler
	Vote     *VoteHandler
	Flag     *FlagHandler
	User     *UserHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(db *gorm.DB, svc *questions.Service) *Handler {
	return &Handler{
		Auth:     NewAuthHandler(db),
		Question: NewQuestionHandler(db, svc),
		Answer:   NewAnswerHandler(db, svc),
		Vote:     NewVoteHandler(db, svc),
		Flag:     NewFlagHandler(db),
		User:     NewUserHandler(db),
	}
}

// currentUserID pulls the authenticated user id set by the auth middleware.
func currentUserID(c *gin.Context) (int, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	switch v := userID.(type) {
	case int:
		return v, true
	case uint:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// requireModerator loads the current user and aborts with 403 unless they
// are a moderator.
func requireModerator(c *gin.Context, db *gorm.DB) (*models.User, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return nil, false
	}

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return nil, false
	}
	if !user.IsModerator {
		c.JSON(http.StatusForbidden, gin.H{"error": "Moderator access required"})
		return nil, false
	}
	return &user, true
}

// anonymousID returns the visitor's anonymous identifier, if any.
func anonymousID(c *gin.Context) string {
	if v, exists := c.Get("anonymous_id"); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
