package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/kitsunehq/kitsune-backend/internal/config"
	"github.com/kitsunehq/kitsune-backend/internal/models"
	"github.com/kitsunehq/kitsune-backend/internal/tasks"
)

// JobReloadQuestionVisits is the scheduled reconciliation job name.
const JobReloadQuestionVisits = "analytics.reload_question_visits"

type pair struct {
	questionID int
	visits     int
}

// Reconciler replaces the locally cached per-question visit counts with
// fresh values from the analytics source. Counts are always fully replaced
// (delete then insert), never incremented, so a repeated run with the same
// input is a no-op.
type Reconciler struct {
	db     *gorm.DB
	source Source

	// insert defaults to insertBatch; tests swap it to inject referential
	// failures into the retry path.
	insert func(tx *gorm.DB, batch []pair) error
}

func NewReconciler(db *gorm.DB, source Source) *Reconciler {
	r := &Reconciler{db: db, source: source}
	r.insert = r.insertBatch
	return r
}

// RegisterJobs wires the reload into the dispatcher.
func (r *Reconciler) RegisterJobs(d *tasks.Dispatcher) {
	d.Register(JobReloadQuestionVisits, func(ctx context.Context, _ any) error {
		return r.Reload(ctx)
	}, tasks.Options{})
}

// Reload streams (question, visits) pairs from the source, buffering up to
// AnalyticsBufferSize before each delete+insert pass. The whole run is one
// transaction: a sub-batch that fails its single retry aborts everything.
func (r *Reconciler) Reload(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		buffer := make([]pair, 0, config.AnalyticsBufferSize)

		flush := func() error {
			if len(buffer) == 0 {
				return nil
			}
			if err := r.replaceBatch(tx, buffer); err != nil {
				return err
			}
			buffer = buffer[:0]
			return nil
		}

		err := r.source.PageviewsByQuestion(ctx, func(questionID, visits int) error {
			buffer = append(buffer, pair{questionID: questionID, visits: visits})
			if len(buffer) >= config.AnalyticsBufferSize {
				return flush()
			}
			return nil
		})
		if err != nil {
			return err
		}
		return flush()
	})
}

// replaceBatch deletes the stale rows for every question in the buffer, then
// inserts fresh rows in sub-batches small enough to respect payload limits.
func (r *Reconciler) replaceBatch(tx *gorm.DB, buffer []pair) error {
	ids := make([]int, len(buffer))
	for i, p := range buffer {
		ids[i] = p.questionID
	}

	slog.Info("replacing question visit records", "count", len(ids))

	if err := tx.Where("question_id IN ?", ids).
		Delete(&models.QuestionVisits{}).Error; err != nil {
		return fmt.Errorf("delete stale visits: %w", err)
	}

	for start := 0; start < len(buffer); start += config.AnalyticsInsertBatchSize {
		end := start + config.AnalyticsInsertBatchSize
		if end > len(buffer) {
			end = len(buffer)
		}
		batch := buffer[start:end]

		if err := r.insert(tx, batch); err != nil {
			if !isForeignKeyViolation(err) {
				return err
			}
			// A question was deleted in the window between the existence
			// filter and the insert. Give the batch one more try; a second
			// failure aborts the entire run.
			if err := r.insert(tx, batch); err != nil {
				return fmt.Errorf("insert visits batch (after retry): %w", err)
			}
		}
	}
	return nil
}

// insertBatch inserts rows for the questions in the batch that still exist.
// The filter keeps a since-deleted question from producing a referential
// failure in the common case; the savepoint keeps a failure from poisoning
// the outer transaction so the retry can run.
func (r *Reconciler) insertBatch(tx *gorm.DB, batch []pair) error {
	ids := make([]int, len(batch))
	for i, p := range batch {
		ids[i] = p.questionID
	}

	var validIDs []int
	if err := tx.Model(&models.Question{}).Where("id IN ?", ids).
		Pluck("id", &validIDs).Error; err != nil {
		return fmt.Errorf("filter existing questions: %w", err)
	}
	if len(validIDs) == 0 {
		return nil
	}

	valid := make(map[int]bool, len(validIDs))
	for _, id := range validIDs {
		valid[id] = true
	}

	rows := make([]models.QuestionVisits, 0, len(validIDs))
	for _, p := range batch {
		if valid[p.questionID] {
			rows = append(rows, models.QuestionVisits{
				QuestionID: p.questionID,
				Visits:     p.visits,
			})
		}
	}

	return tx.Transaction(func(inner *gorm.DB) error {
		return inner.Create(&rows).Error
	})
}

func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
