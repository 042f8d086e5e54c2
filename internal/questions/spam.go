package questions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kitsunehq/kitsune-backend/internal/cache"
	"github.com/kitsunehq/kitsune-backend/internal/config"
	"github.com/kitsunehq/kitsune-backend/internal/models"
)

// MarkQuestionAsSpam flags a question as spam, stamping the time and actor.
// Idempotent: marking twice just overwrites the stamp.
func (s *Service) MarkQuestionAsSpam(ctx context.Context, q *models.Question, byUserID int) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(q).UpdateColumns(map[string]any{
		"is_spam":              true,
		"marked_as_spam":       now,
		"marked_as_spam_by_id": byUserID,
	}).Error
	if err != nil {
		return fmt.Errorf("mark question as spam: %w", err)
	}
	q.IsSpam = true
	q.MarkedAsSpam = &now
	q.MarkedAsSpamByID = &byUserID

	s.cache.Invalidate(ctx, "question", q.ID, cache.FieldHTML, cache.FieldTags, cache.FieldContributors)
	return nil
}

// MarkAnswerAsSpam flags an answer as spam. Because the answer leaves the
// non-spam sequence, the parent's aggregates are refreshed and every later
// answer shifts: a page recompute is scheduled.
func (s *Service) MarkAnswerAsSpam(ctx context.Context, a *models.Answer, byUserID int) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(a).UpdateColumns(map[string]any{
		"is_spam":              true,
		"marked_as_spam":       now,
		"marked_as_spam_by_id": byUserID,
	}).Error
	if err != nil {
		return fmt.Errorf("mark answer as spam: %w", err)
	}
	a.IsSpam = true
	a.MarkedAsSpam = &now
	a.MarkedAsSpamByID = &byUserID

	if err := s.refreshAnswerAggregates(ctx, a.QuestionID); err != nil {
		return err
	}

	s.cache.Invalidate(ctx, "answer", a.ID, cache.FieldHTML)
	s.cache.Invalidate(ctx, "question", a.QuestionID, cache.FieldContributors)

	return s.dispatcher.Enqueue(JobUpdateAnswerPages, a.QuestionID)
}

// MarkUserContentAsSpam flags every question and answer a user created,
// typically after their account is confirmed as a spammer.
func (s *Service) MarkUserContentAsSpam(ctx context.Context, userID, byUserID int) error {
	db := s.db.WithContext(ctx)
	now := time.Now().UTC()

	spam := map[string]any{
		"is_spam":              true,
		"marked_as_spam":       now,
		"marked_as_spam_by_id": byUserID,
	}

	if err := db.Model(&models.Question{}).Where("creator_id = ?", userID).
		UpdateColumns(spam).Error; err != nil {
		return fmt.Errorf("mark user questions as spam: %w", err)
	}
	if err := db.Model(&models.Answer{}).Where("creator_id = ?", userID).
		UpdateColumns(spam).Error; err != nil {
		return fmt.Errorf("mark user answers as spam: %w", err)
	}
	return nil
}

// SpamCleanupResult summarizes one cleanup run. Answers removed by a
// question's cascade are not counted under AnswersDeleted.
type SpamCleanupResult struct {
	QuestionsDeleted int       `json:"questions_deleted"`
	AnswersDeleted   int       `json:"answers_deleted"`
	Cutoff           time.Time `json:"cutoff"`
}

// CleanupOldSpam deletes questions and answers that were marked as spam
// before the retention cutoff. One item failing to delete is captured and
// skipped; completed deletions stand and the summary reports what succeeded.
func (s *Service) CleanupOldSpam(ctx context.Context) (SpamCleanupResult, error) {
	db := s.db.WithContext(ctx)
	cutoff := time.Now().UTC().Add(-config.SpamRetention())
	result := SpamCleanupResult{Cutoff: cutoff}

	slog.Info("starting cleanup of old spam content", "cutoff", cutoff)

	// Questions first: their cascade removes child answers, which must not be
	// double-counted below.
	var questionIDs []int
	if err := db.Model(&models.Question{}).
		Where("is_spam = ? AND marked_as_spam < ?", true, cutoff).
		Pluck("id", &questionIDs).Error; err != nil {
		return result, fmt.Errorf("cleanup old spam: %w", err)
	}

	for _, id := range questionIDs {
		if err := db.Delete(&models.Question{}, id).Error; err != nil {
			s.sink.CaptureException(fmt.Errorf("cleanup old spam: question %d: %w", id, err))
			continue
		}
		result.QuestionsDeleted++
	}

	var answerIDs []int
	if err := db.Model(&models.Answer{}).
		Where("is_spam = ? AND marked_as_spam < ?", true, cutoff).
		Pluck("id", &answerIDs).Error; err != nil {
		return result, fmt.Errorf("cleanup old spam: %w", err)
	}

	for _, id := range answerIDs {
		if err := db.Delete(&models.Answer{}, id).Error; err != nil {
			s.sink.CaptureException(fmt.Errorf("cleanup old spam: answer %d: %w", id, err))
			continue
		}
		result.AnswersDeleted++
	}

	return result, nil
}
