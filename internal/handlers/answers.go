package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kitsunehq/kitsune-backend/internal/models"
	"github.com/kitsunehq/kitsune-backend/internal/questions"
)

type AnswerHandler struct {
	db  *gorm.DB
	svc *questions.Service
}

func NewAnswerHandler(db *gorm.DB, svc *questions.Service) *AnswerHandler {
	return &AnswerHandler{db: db, svc: svc}
}

// ListAnswers returns the answers for one page of a question's thread. The
// page column is precomputed, so fetching a page is a single indexed filter
// rather than an offset scan.
func (h *AnswerHandler) ListAnswers(c *gin.Context) {
	questionID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}

	var answers []models.Answer
	err = h.db.Preload("Creator").
		Where("question_id = ? AND is_spam = ? AND page = ?", questionID, false, page).
		Order("created_at ASC").
		Find(&answers).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch answers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answers": answers,
		"page":    page,
	})
}

// CreateAnswer posts a reply to a question. Locked and archived questions do
// not accept replies.
func (h *AnswerHandler) CreateAnswer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	questionID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}

	var q models.Question
	if err := h.db.First(&q, questionID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		return
	}
	if !q.Editable() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Question is locked or archived"})
		return
	}

	var req models.CreateAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content is required"})
		return
	}

	answer := models.Answer{
		QuestionID: questionID,
		CreatorID:  userID,
		Content:    req.Content,
	}

	if err := h.svc.CreateAnswer(c.Request.Context(), &answer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create answer"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Answer created successfully",
		"answer":  answer,
	})
}

// UpdateAnswer edits an answer's content. Author or moderator only.
func (h *AnswerHandler) UpdateAnswer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	a, ok := h.loadAnswer(c)
	if !ok {
		return
	}

	if a.CreatorID != userID {
		if _, ok := requireModerator(c, h.db); !ok {
			return
		}
	}

	var input struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]any{
		"content":       input.Content,
		"updated_by_id": userID,
	}
	if err := h.db.Model(a).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update answer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Answer updated successfully", "answer": a})
}

// DeleteAnswer removes an answer and repairs the parent question's pointers
// and counts.
func (h *AnswerHandler) DeleteAnswer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	a, ok := h.loadAnswer(c)
	if !ok {
		return
	}

	if a.CreatorID != userID {
		if _, ok := requireModerator(c, h.db); !ok {
			return
		}
	}

	if err := h.svc.DeleteAnswer(c.Request.Context(), a); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete answer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Answer deleted successfully"})
}

// MarkAnswerSpam flags an answer as spam. Moderator only.
func (h *AnswerHandler) MarkAnswerSpam(c *gin.Context) {
	mod, ok := requireModerator(c, h.db)
	if !ok {
		return
	}

	a, ok := h.loadAnswer(c)
	if !ok {
		return
	}

	if err := h.svc.MarkAnswerAsSpam(c.Request.Context(), a, mod.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark answer as spam"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Answer marked as spam"})
}

func (h *AnswerHandler) loadAnswer(c *gin.Context) (*models.Answer, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid answer ID"})
		return nil, false
	}

	var a models.Answer
	if err := h.db.First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Answer not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch answer"})
		}
		return nil, false
	}
	return &a, true
}
