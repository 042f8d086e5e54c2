package questions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kitsunehq/kitsune-backend/internal/config"
	"github.com/kitsunehq/kitsune-backend/internal/models"
)

// Caller errors from Take, distinguishable so the UI can explain each case.
var (
	// ErrInvalidUser means the acting user authored the question.
	ErrInvalidUser = errors.New("user cannot take their own question")
	// ErrAlreadyTaken means another user holds an unexpired claim and force
	// was not set.
	ErrAlreadyTaken = errors.New("question is already taken by another user")
)

// Take places (or renews) the exclusive working claim on a question. The
// author can never take their own question. An unexpired claim by someone
// else blocks the take unless force is set, which transfers it. Taking a
// question you already hold just renews the lease.
func (s *Service) Take(ctx context.Context, q *models.Question, userID int, force bool) error {
	if userID == q.CreatorID {
		return ErrInvalidUser
	}

	if s.claimActive(q) && *q.TakenByID != userID && !force {
		return ErrAlreadyTaken
	}

	until := time.Now().UTC().Add(config.TakeTimeout)
	err := s.db.WithContext(ctx).Model(q).UpdateColumns(map[string]any{
		"taken_by_id": userID,
		"taken_until": until,
	}).Error
	if err != nil {
		return fmt.Errorf("take question: %w", err)
	}
	q.TakenByID = &userID
	q.TakenUntil = &until
	return nil
}

// IsTaken reports whether the question currently holds a valid claim. A
// claim missing either field or past its expiry is reset in the database and
// reported as not taken.
func (s *Service) IsTaken(ctx context.Context, q *models.Question) (bool, error) {
	if s.claimActive(q) {
		return true, nil
	}

	if q.TakenByID != nil || q.TakenUntil != nil {
		err := s.db.WithContext(ctx).Model(q).UpdateColumns(map[string]any{
			"taken_by_id": nil,
			"taken_until": nil,
		}).Error
		if err != nil {
			return false, fmt.Errorf("clear stale claim: %w", err)
		}
		q.TakenByID = nil
		q.TakenUntil = nil
	}
	return false, nil
}

func (s *Service) claimActive(q *models.Question) bool {
	return q.TakenByID != nil && q.TakenUntil != nil && q.TakenUntil.After(time.Now().UTC())
}
