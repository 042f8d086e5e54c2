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

type VoteHandler struct {
	db  *gorm.DB
	svc *questions.Service
}

func NewVoteHandler(db *gorm.DB, svc *questions.Service) *VoteHandler {
	return &VoteHandler{db: db, svc: svc}
}

// voteIdentity resolves who is voting: a logged-in user id, an anonymous
// cookie id, or neither.
func voteIdentity(c *gin.Context) (*int, string) {
	if userID, ok := currentUserID(c); ok {
		return &userID, ""
	}
	return nil, anonymousID(c)
}

// VoteQuestion records an "I have this problem too" vote. A repeat vote by
// the same identity (or the question's own author) is refused with 409; the
// check is advisory, not a database constraint.
func (h *VoteHandler) VoteQuestion(c *gin.Context) {
	questionID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}

	var q models.Question
	if err := h.db.First(&q, questionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch question"})
		}
		return
	}

	creatorID, anonID := voteIdentity(c)
	if creatorID == nil && anonID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No voter identity"})
		return
	}

	voted, err := h.svc.HasVotedQuestion(c.Request.Context(), &q, creatorID, anonID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record vote"})
		return
	}
	if voted {
		c.JSON(http.StatusConflict, gin.H{"error": "Already voted on this question"})
		return
	}

	var metadata map[string]string
	_ = c.ShouldBindJSON(&metadata) // optional body

	vote, err := h.svc.VoteOnQuestion(c.Request.Context(), q.ID, creatorID, anonID, metadata)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record vote"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Vote recorded",
		"vote":    vote,
	})
}

// VoteAnswer records a helpful / not helpful vote on an answer.
func (h *VoteHandler) VoteAnswer(c *gin.Context) {
	answerID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid answer ID"})
		return
	}

	var a models.Answer
	if err := h.db.First(&a, answerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Answer not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch answer"})
		}
		return
	}

	creatorID, anonID := voteIdentity(c)
	if creatorID == nil && anonID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No voter identity"})
		return
	}

	voted, err := h.svc.HasVotedAnswer(c.Request.Context(), &a, creatorID, anonID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record vote"})
		return
	}
	if voted {
		c.JSON(http.StatusConflict, gin.H{"error": "Already voted on this answer"})
		return
	}

	var input struct {
		Helpful  *bool             `json:"helpful" binding:"required"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vote, err := h.svc.VoteOnAnswer(c.Request.Context(), a.ID, *input.Helpful, creatorID, anonID, input.Metadata)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record vote"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Vote recorded",
		"vote":    vote,
	})
}

// HasVotedQuestion tells the client whether its identity already voted.
func (h *VoteHandler) HasVotedQuestion(c *gin.Context) {
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

	creatorID, anonID := voteIdentity(c)
	voted, err := h.svc.HasVotedQuestion(c.Request.Context(), &q, creatorID, anonID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check vote"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"has_voted": voted})
}
