package questions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/kitsunehq/kitsune-backend/internal/config"
	"github.com/kitsunehq/kitsune-backend/internal/models"
)

// RecomputeAnswerPages reassigns the page number of every non-spam answer
// under a question: the i-th oldest answer (0-indexed) lands on page
// i/AnswersPerPage + 1. It persists only changed values, via column updates
// so no save-side effects fire. A question deleted before the job runs is a
// no-op, not an error.
func (s *Service) RecomputeAnswerPages(ctx context.Context, questionID int) error {
	db := s.db.WithContext(ctx)

	var q models.Question
	if err := db.First(&q, questionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Debug("question deleted before page recompute", "question_id", questionID)
			return nil
		}
		return fmt.Errorf("recompute answer pages: %w", err)
	}

	slog.Debug("recalculating answer page numbers", "question_id", q.ID, "title", q.Title)

	var answers []models.Answer
	if err := db.Where("question_id = ? AND is_spam = ?", questionID, false).
		Order("created_at asc").Find(&answers).Error; err != nil {
		return fmt.Errorf("recompute answer pages: %w", err)
	}

	for i, a := range answers {
		page := i/config.AnswersPerPage + 1
		if a.Page == page {
			continue
		}
		if err := db.Model(&models.Answer{}).Where("id = ?", a.ID).
			UpdateColumn("page", page).Error; err != nil {
			return fmt.Errorf("recompute answer pages: %w", err)
		}
	}
	return nil
}
