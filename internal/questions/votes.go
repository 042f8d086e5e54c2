package questions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/kitsunehq/kitsune-backend/internal/config"
	"github.com/kitsunehq/kitsune-backend/internal/models"
)

// SyncNumVotesPastWeek recounts the votes a question received in the
// trailing 7-day window and stores the result. A question deleted between
// the vote landing and this job running is logged and skipped.
func (s *Service) SyncNumVotesPastWeek(ctx context.Context, questionID int) error {
	db := s.db.WithContext(ctx)

	var q models.Question
	if err := db.First(&q, questionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Info("question deleted before vote sync", "question_id", questionID)
			return nil
		}
		return fmt.Errorf("sync votes past week: %w", err)
	}

	start := time.Now().UTC().Add(-config.VoteRecencyWindow)

	var n int64
	// BETWEEN keeps the created_at index usable in Postgres.
	if err := db.Model(&models.QuestionVote{}).
		Where("question_id = ? AND created_at BETWEEN ? AND NOW()", questionID, start).
		Count(&n).Error; err != nil {
		return fmt.Errorf("sync votes past week: %w", err)
	}

	if err := db.Model(&models.Question{}).Where("id = ?", questionID).
		UpdateColumn("num_votes_past_week", n).Error; err != nil {
		return fmt.Errorf("sync votes past week: %w", err)
	}
	return nil
}

// UpdateQuestionVoteChunk refreshes num_votes_past_week for a bounded list of
// questions in one bulk statement, one correlated subquery instead of a
// round trip per question.
func (s *Service) UpdateQuestionVoteChunk(ctx context.Context, questionIDs []int) error {
	if len(questionIDs) == 0 {
		return nil
	}

	slog.Info("calculating past week votes", "questions", len(questionIDs))

	start := time.Now().UTC().Add(-config.VoteRecencyWindow).Truncate(24 * time.Hour)

	err := s.db.WithContext(ctx).Model(&models.Question{}).
		Where("id IN ?", questionIDs).
		UpdateColumn("num_votes_past_week", gorm.Expr(
			`COALESCE((
				SELECT COUNT(*) FROM question_votes
				WHERE question_votes.question_id = questions.id
				AND question_votes.created_at BETWEEN ? AND NOW()
			), 0)`, start)).Error
	if err != nil {
		return fmt.Errorf("update vote chunk: %w", err)
	}
	return nil
}

// ScheduleVoteChunks enqueues a chunked refresh covering every question whose
// weekly counter could be stale: anything with a recent vote, plus anything
// still carrying a nonzero counter that should decay back to zero.
func (s *Service) ScheduleVoteChunks(ctx context.Context) error {
	start := time.Now().UTC().Add(-config.VoteRecencyWindow)

	var ids []int
	err := s.db.WithContext(ctx).Model(&models.Question{}).
		Where("num_votes_past_week > 0 OR id IN (?)",
			s.db.Model(&models.QuestionVote{}).
				Select("question_id").
				Where("created_at BETWEEN ? AND NOW()", start)).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("schedule vote chunks: %w", err)
	}

	for i := 0; i < len(ids); i += config.VoteChunkSize {
		end := i + config.VoteChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := make([]int, end-i)
		copy(chunk, ids[i:end])
		if err := s.dispatcher.Enqueue(JobUpdateQuestionVoteChunk, chunk); err != nil {
			return err
		}
	}
	return nil
}

// VoteOnQuestion records an "I have this problem too" vote and schedules the
// weekly-counter sync. Metadata values are capped before insert.
func (s *Service) VoteOnQuestion(ctx context.Context, questionID int, creatorID *int, anonymousID string, metadata map[string]string) (*models.QuestionVote, error) {
	vote := &models.QuestionVote{
		QuestionID:  questionID,
		CreatorID:   creatorID,
		AnonymousID: anonymousID,
	}
	if err := s.db.WithContext(ctx).Create(vote).Error; err != nil {
		return nil, fmt.Errorf("vote on question: %w", err)
	}

	if err := s.addVoteMetadata(ctx, models.VoteTypeQuestion, vote.ID, metadata); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Enqueue(JobUpdateQuestionVotes, questionID); err != nil {
		return nil, err
	}
	return vote, nil
}

// VoteOnAnswer records a helpful / not helpful vote on an answer.
func (s *Service) VoteOnAnswer(ctx context.Context, answerID int, helpful bool, creatorID *int, anonymousID string, metadata map[string]string) (*models.AnswerVote, error) {
	vote := &models.AnswerVote{
		AnswerID:    answerID,
		Helpful:     helpful,
		CreatorID:   creatorID,
		AnonymousID: anonymousID,
	}
	if err := s.db.WithContext(ctx).Create(vote).Error; err != nil {
		return nil, fmt.Errorf("vote on answer: %w", err)
	}

	if err := s.addVoteMetadata(ctx, models.VoteTypeAnswer, vote.ID, metadata); err != nil {
		return nil, err
	}
	return vote, nil
}

func (s *Service) addVoteMetadata(ctx context.Context, voteType string, voteID int, metadata map[string]string) error {
	for key, value := range metadata {
		value = truncateValue(value, config.VoteMetadataMaxLength)
		row := models.VoteMetadata{VoteType: voteType, VoteID: voteID, Key: key, Value: value}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("add vote metadata: %w", err)
		}
	}
	return nil
}

// HasVotedQuestion reports whether this identity already voted on (or asked)
// the question. Advisory only: there is no uniqueness constraint behind it.
func (s *Service) HasVotedQuestion(ctx context.Context, q *models.Question, creatorID *int, anonymousID string) (bool, error) {
	if creatorID != nil && *creatorID == q.CreatorID {
		return true, nil
	}
	return s.voteExists(ctx, &models.QuestionVote{}, "question_id", q.ID, creatorID, anonymousID)
}

// HasVotedAnswer reports whether this identity already voted on the answer.
func (s *Service) HasVotedAnswer(ctx context.Context, a *models.Answer, creatorID *int, anonymousID string) (bool, error) {
	if creatorID != nil && *creatorID == a.CreatorID {
		return true, nil
	}
	return s.voteExists(ctx, &models.AnswerVote{}, "answer_id", a.ID, creatorID, anonymousID)
}

// truncateValue caps a string at max bytes without splitting a rune; a cut
// mid-rune would produce invalid UTF-8, which Postgres rejects outright.
func truncateValue(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (s *Service) voteExists(ctx context.Context, model any, column string, targetID int, creatorID *int, anonymousID string) (bool, error) {
	q := s.db.WithContext(ctx).Model(model).Where(column+" = ?", targetID)
	switch {
	case creatorID != nil:
		q = q.Where("creator_id = ?", *creatorID)
	case anonymousID != "":
		q = q.Where("anonymous_id = ?", anonymousID)
	default:
		return false, nil
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
