package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kitsunehq/kitsune-backend/internal/config"
	"github.com/kitsunehq/kitsune-backend/internal/models"
	"github.com/kitsunehq/kitsune-backend/internal/questions"
)

type QuestionHandler struct {
	db  *gorm.DB
	svc *questions.Service
}

func NewQuestionHandler(db *gorm.DB, svc *questions.Service) *QuestionHandler {
	return &QuestionHandler{db: db, svc: svc}
}

// ListQuestions returns a page of questions, optionally filtered by product,
// topic and solved state. Spam is never listed.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}

	query := h.db.Model(&models.Question{}).
		Where("is_spam = ?", false).
		Preload("Creator").
		Preload("Product").
		Preload("Topic").
		Preload("Tags")

	if product := c.Query("product"); product != "" {
		query = query.Joins("JOIN products ON products.id = questions.product_id").
			Where("products.slug = ?", product)
	}
	if topic := c.Query("topic"); topic != "" {
		query = query.Joins("JOIN topics ON topics.id = questions.topic_id").
			Where("topics.slug = ?", topic)
	}
	switch c.Query("filter") {
	case "solved":
		query = query.Where("solution_id IS NOT NULL")
	case "unsolved":
		query = query.Where("solution_id IS NULL")
	case "no-replies":
		query = query.Where("num_answers = 0")
	}

	switch c.DefaultQuery("sort", "recent") {
	case "requested":
		query = query.Order("num_votes_past_week DESC, created_at DESC")
	default:
		query = query.Order("created_at DESC")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch questions"})
		return
	}

	var list []models.Question
	err := query.Limit(config.QuestionsPerPage).
		Offset((page - 1) * config.QuestionsPerPage).
		Find(&list).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch questions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"questions": list,
		"page":      page,
		"total":     total,
	})
}

// GetQuestion returns one question with its metadata and visit count.
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	q, ok := h.loadQuestion(c)
	if !ok {
		return
	}

	metadata, err := h.svc.Metadata(c.Request.Context(), q.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch question"})
		return
	}

	var visits models.QuestionVisits
	numVisits := 0
	if err := h.db.Where("question_id = ?", q.ID).First(&visits).Error; err == nil {
		numVisits = visits.Visits
	}

	taken, err := h.svc.IsTaken(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch question"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"question":   q,
		"metadata":   metadata,
		"num_visits": numVisits,
		"is_taken":   taken,
		"is_solved":  q.IsSolved(),
	})
}

// CreateQuestion asks a new question.
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == "" || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and content are required"})
		return
	}

	question := models.Question{
		Title:     req.Title,
		Content:   req.Content,
		CreatorID: userID,
		ProductID: req.ProductID,
		TopicID:   req.TopicID,
	}

	if err := h.svc.CreateQuestion(c.Request.Context(), &question); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create question"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Question created successfully",
		"question": question,
	})
}

// UpdateQuestion edits the title or content. Only the author (while the
// question is editable) or a moderator may edit.
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	q, ok := h.loadQuestion(c)
	if !ok {
		return
	}

	if q.CreatorID != userID {
		if _, ok := requireModerator(c, h.db); !ok {
			return
		}
	} else if !q.Editable() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Question is locked or archived"})
		return
	}

	var input struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]any{"updated_by_id": userID}
	if input.Title != "" {
		updates["title"] = input.Title
	}
	if input.Content != "" {
		updates["content"] = input.Content
	}

	if err := h.db.Model(q).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update question"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Question updated successfully", "question": q})
}

// DeleteQuestion removes a question. Author or moderator only; answers, votes
// and metadata go with it via cascade.
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	q, ok := h.loadQuestion(c)
	if !ok {
		return
	}

	if q.CreatorID != userID {
		if _, ok := requireModerator(c, h.db); !ok {
			return
		}
	}

	if err := h.db.Delete(q).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete question"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Question deleted successfully"})
}

// LockQuestion toggles the locked flag. Moderator only.
func (h *QuestionHandler) LockQuestion(c *gin.Context) {
	h.setModeratorFlag(c, "is_locked")
}

// ArchiveQuestion toggles the archived flag. Moderator only.
func (h *QuestionHandler) ArchiveQuestion(c *gin.Context) {
	h.setModeratorFlag(c, "is_archived")
}

func (h *QuestionHandler) setModeratorFlag(c *gin.Context, column string) {
	if _, ok := requireModerator(c, h.db); !ok {
		return
	}

	q, ok := h.loadQuestion(c)
	if !ok {
		return
	}

	var input struct {
		Value *bool `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.Model(q).UpdateColumn(column, *input.Value).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update question"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Question updated successfully"})
}

// SolveQuestion marks an answer as the accepted solution. Only the author or
// a moderator can choose the solution.
func (h *QuestionHandler) SolveQuestion(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	q, ok := h.loadQuestion(c)
	if !ok {
		return
	}

	if q.CreatorID != userID {
		if _, ok := requireModerator(c, h.db); !ok {
			return
		}
	}

	var input struct {
		AnswerID int `json:"answer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.SolveQuestion(c.Request.Context(), q, input.AnswerID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Answer not found on this question"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to solve question"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Question marked as solved", "question": q})
}

// UnsolveQuestion clears the accepted solution.
func (h *QuestionHandler) UnsolveQuestion(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	q, ok := h.loadQuestion(c)
	if !ok {
		return
	}

	if q.CreatorID != userID {
		if _, ok := requireModerator(c, h.db); !ok {
			return
		}
	}

	if err := h.svc.UnsolveQuestion(c.Request.Context(), q); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unsolve question"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Solution removed", "question": q})
}

// TakeQuestion places the exclusive working claim on a question.
func (h *QuestionHandler) TakeQuestion(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	q, ok := h.loadQuestion(c)
	if !ok {
		return
	}

	force := c.Query("force") == "true"

	if err := h.svc.Take(c.Request.Context(), q, userID, force); err != nil {
		switch {
		case errors.Is(err, questions.ErrInvalidUser):
			c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot take your own question"})
		case errors.Is(err, questions.ErrAlreadyTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "Question is already taken by another user"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to take question"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Question taken",
		"taken_until": q.TakenUntil,
	})
}

// MarkQuestionSpam flags a question as spam. Moderator only.
func (h *QuestionHandler) MarkQuestionSpam(c *gin.Context) {
	mod, ok := requireModerator(c, h.db)
	if !ok {
		return
	}

	q, ok := h.loadQuestion(c)
	if !ok {
		return
	}

	if err := h.svc.MarkQuestionAsSpam(c.Request.Context(), q, mod.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark question as spam"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Question marked as spam"})
}

// AddQuestionMetadata upserts named values on a question.
func (h *QuestionHandler) AddQuestionMetadata(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	q, ok := h.loadQuestion(c)
	if !ok {
		return
	}

	if q.CreatorID != userID {
		if _, ok := requireModerator(c, h.db); !ok {
			return
		}
	}

	var values map[string]string
	if err := c.ShouldBindJSON(&values); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.AddMetadata(c.Request.Context(), q.ID, values); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save metadata"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Metadata saved"})
}

func (h *QuestionHandler) loadQuestion(c *gin.Context) (*models.Question, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return nil, false
	}

	var q models.Question
	err = h.db.Preload("Creator").Preload("Product").Preload("Topic").Preload("Tags").
		First(&q, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch question"})
		}
		return nil, false
	}
	return &q, true
}
