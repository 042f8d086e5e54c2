package questions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/kitsunehq/kitsune-backend/internal/cache"
	"github.com/kitsunehq/kitsune-backend/internal/config"
	"github.com/kitsunehq/kitsune-backend/internal/models"
	"github.com/kitsunehq/kitsune-backend/internal/reporting"
	"github.com/kitsunehq/kitsune-backend/internal/tasks"
)

// Background job names. The dispatcher executes these asynchronously and
// at-least-once; every handler derives its result from current stored state,
// so repeats and reordering converge.
const (
	JobUpdateQuestionVotes     = "questions.update_question_votes"
	JobUpdateQuestionVoteChunk = "questions.update_question_vote_chunk"
	JobScheduleVoteChunks      = "questions.schedule_vote_chunks"
	JobUpdateAnswerPages       = "questions.update_answer_pages"
	JobCleanupOldSpam          = "questions.cleanup_old_spam"
	JobClassifyQuestion        = "questions.classify_question"
)

// Metadata names that survive ClearMutableMetadata.
var immutableMetadata = []string{"useragent", "product", "category", "kb_visits_prior"}

// Service owns the question/answer lifecycle: aggregate bookkeeping, paging,
// vote counters, spam and moderation handling.
type Service struct {
	db         *gorm.DB
	cache      *cache.Cache
	dispatcher *tasks.Dispatcher
	sink       reporting.Sink
	classifier Classifier
}

func NewService(db *gorm.DB, c *cache.Cache, d *tasks.Dispatcher, sink reporting.Sink, classifier Classifier) *Service {
	return &Service{db: db, cache: c, dispatcher: d, sink: sink, classifier: classifier}
}

// DB exposes the underlying handle for handlers that only read.
func (s *Service) DB() *gorm.DB {
	return s.db
}

// RegisterJobs wires the service's background handlers into the dispatcher.
func (s *Service) RegisterJobs() {
	s.dispatcher.Register(JobUpdateQuestionVotes, func(ctx context.Context, arg any) error {
		id, ok := intArg(arg)
		if !ok {
			return fmt.Errorf("update_question_votes: bad argument %v", arg)
		}
		return s.SyncNumVotesPastWeek(ctx, id)
	}, tasks.Options{Rate: 1, PerArg: true})

	s.dispatcher.Register(JobUpdateQuestionVoteChunk, func(ctx context.Context, arg any) error {
		ids, ok := arg.([]int)
		if !ok {
			return fmt.Errorf("update_question_vote_chunk: bad argument %v", arg)
		}
		return s.UpdateQuestionVoteChunk(ctx, ids)
	}, tasks.Options{Rate: 4.0 / 60})

	s.dispatcher.Register(JobScheduleVoteChunks, func(ctx context.Context, _ any) error {
		return s.ScheduleVoteChunks(ctx)
	}, tasks.Options{})

	s.dispatcher.Register(JobUpdateAnswerPages, func(ctx context.Context, arg any) error {
		id, ok := intArg(arg)
		if !ok {
			return fmt.Errorf("update_answer_pages: bad argument %v", arg)
		}
		return s.RecomputeAnswerPages(ctx, id)
	}, tasks.Options{Rate: 4.0 / 60, Burst: 4})

	s.dispatcher.Register(JobCleanupOldSpam, func(ctx context.Context, _ any) error {
		result, err := s.CleanupOldSpam(ctx)
		if err != nil {
			return err
		}
		slog.Info("spam cleanup completed",
			"questions_deleted", result.QuestionsDeleted,
			"answers_deleted", result.AnswersDeleted,
			"cutoff", result.Cutoff)
		return nil
	}, tasks.Options{})

	s.dispatcher.Register(JobClassifyQuestion, func(ctx context.Context, arg any) error {
		id, ok := intArg(arg)
		if !ok {
			return fmt.Errorf("classify_question: bad argument %v", arg)
		}
		return s.ClassifyQuestion(ctx, id)
	}, tasks.Options{})
}

// CreateQuestion persists a new question and hands it to the classifier (or,
// without one, straight to the moderation queue).
func (s *Service) CreateQuestion(ctx context.Context, q *models.Question) error {
	if err := s.db.WithContext(ctx).Create(q).Error; err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return s.dispatcher.Enqueue(JobClassifyQuestion, q.ID)
}

// CreateAnswer persists a reply and refreshes the parent question's
// aggregates. The page assigned here is the cheap approximation implied by
// the current answer count; the async recompute corrects it after deletions.
func (s *Service) CreateAnswer(ctx context.Context, a *models.Answer) error {
	var q models.Question
	if err := s.db.WithContext(ctx).First(&q, a.QuestionID).Error; err != nil {
		return fmt.Errorf("create answer: %w", err)
	}

	a.Page = q.NumAnswers/config.AnswersPerPage + 1

	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("create answer: %w", err)
	}

	if err := s.refreshAnswerAggregates(ctx, q.ID); err != nil {
		return err
	}

	s.cache.Invalidate(ctx, "question", q.ID, cache.FieldContributors)
	return nil
}

// DeleteAnswer removes an answer, reassigning the parent's last-answer and
// solution pointers when they referenced it, then schedules a page recompute.
func (s *Service) DeleteAnswer(ctx context.Context, a *models.Answer) error {
	db := s.db.WithContext(ctx)

	var q models.Question
	if err := db.First(&q, a.QuestionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Parent already gone; the answer went with it via cascade.
			return nil
		}
		return fmt.Errorf("delete answer: %w", err)
	}

	updates := map[string]any{}

	if q.LastAnswerID != nil && *q.LastAnswerID == a.ID {
		var next models.Answer
		err := db.Where("question_id = ? AND id <> ?", q.ID, a.ID).
			Order("created_at desc").First(&next).Error
		switch {
		case err == nil:
			updates["last_answer_id"] = next.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			updates["last_answer_id"] = nil
		default:
			return fmt.Errorf("delete answer: %w", err)
		}
	}

	if q.SolutionID != nil && *q.SolutionID == a.ID {
		updates["solution_id"] = nil
	}

	var remaining int64
	if err := db.Model(&models.Answer{}).
		Where("question_id = ? AND is_spam = ? AND id <> ?", q.ID, false, a.ID).
		Count(&remaining).Error; err != nil {
		return fmt.Errorf("delete answer: %w", err)
	}
	updates["num_answers"] = remaining

	if err := db.Model(&models.Question{}).Where("id = ?", q.ID).
		UpdateColumns(updates).Error; err != nil {
		return fmt.Errorf("delete answer: %w", err)
	}

	if err := db.Delete(a).Error; err != nil {
		return fmt.Errorf("delete answer: %w", err)
	}

	s.cache.Invalidate(ctx, "question", q.ID, cache.FieldContributors)
	s.cache.Invalidate(ctx, "answer", a.ID, cache.FieldHTML)

	return s.dispatcher.Enqueue(JobUpdateAnswerPages, q.ID)
}

// SolveQuestion marks an answer as the question's solution and records the
// solver.
func (s *Service) SolveQuestion(ctx context.Context, q *models.Question, answerID int, solverID int) error {
	db := s.db.WithContext(ctx)

	var a models.Answer
	if err := db.Where("id = ? AND question_id = ?", answerID, q.ID).First(&a).Error; err != nil {
		return fmt.Errorf("solve question: %w", err)
	}

	if err := db.Model(q).UpdateColumn("solution_id", a.ID).Error; err != nil {
		return fmt.Errorf("solve question: %w", err)
	}
	q.SolutionID = &a.ID

	return s.AddMetadata(ctx, q.ID, map[string]string{"solver_id": fmt.Sprint(solverID)})
}

// UnsolveQuestion clears the solution reference.
func (s *Service) UnsolveQuestion(ctx context.Context, q *models.Question) error {
	if err := s.db.WithContext(ctx).Model(q).UpdateColumn("solution_id", nil).Error; err != nil {
		return fmt.Errorf("unsolve question: %w", err)
	}
	q.SolutionID = nil
	return s.RemoveMetadata(ctx, q.ID, "solver_id")
}

// AddMetadata upserts named values for a question.
func (s *Service) AddMetadata(ctx context.Context, questionID int, values map[string]string) error {
	db := s.db.WithContext(ctx)
	for name, value := range values {
		row := models.QuestionMetaData{QuestionID: questionID, Name: name, Value: value}
		err := db.Where("question_id = ? AND name = ?", questionID, name).
			Assign(models.QuestionMetaData{Value: value}).
			FirstOrCreate(&row).Error
		if err != nil {
			return fmt.Errorf("add metadata %q: %w", name, err)
		}
	}
	return nil
}

// RemoveMetadata deletes the named value.
func (s *Service) RemoveMetadata(ctx context.Context, questionID int, name string) error {
	return s.db.WithContext(ctx).
		Where("question_id = ? AND name = ?", questionID, name).
		Delete(&models.QuestionMetaData{}).Error
}

// ClearMutableMetadata deletes everything except the immutable names (user
// agent, product, category, prior KB visits).
func (s *Service) ClearMutableMetadata(ctx context.Context, questionID int) error {
	return s.db.WithContext(ctx).
		Where("question_id = ? AND name NOT IN ?", questionID, immutableMetadata).
		Delete(&models.QuestionMetaData{}).Error
}

// Metadata returns all named values for a question as a map.
func (s *Service) Metadata(ctx context.Context, questionID int) (map[string]string, error) {
	var rows []models.QuestionMetaData
	if err := s.db.WithContext(ctx).Where("question_id = ?", questionID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Value
	}
	return out, nil
}

// refreshAnswerAggregates re-derives num_answers and last_answer_id from the
// answer rows themselves.
func (s *Service) refreshAnswerAggregates(ctx context.Context, questionID int) error {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.Answer{}).
		Where("question_id = ? AND is_spam = ?", questionID, false).
		Count(&count).Error; err != nil {
		return fmt.Errorf("refresh aggregates: %w", err)
	}

	var lastID any
	var latest models.Answer
	err := db.Where("question_id = ? AND is_spam = ?", questionID, false).
		Order("created_at desc").First(&latest).Error
	switch {
	case err == nil:
		lastID = latest.ID
	case errors.Is(err, gorm.ErrRecordNotFound):
		lastID = nil
	default:
		return fmt.Errorf("refresh aggregates: %w", err)
	}

	err = db.Model(&models.Question{}).Where("id = ?", questionID).
		UpdateColumns(map[string]any{
			"num_answers":    count,
			"last_answer_id": lastID,
			"updated_at":     time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("refresh aggregates: %w", err)
	}
	return nil
}

func intArg(arg any) (int, bool) {
	switch v := arg.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
