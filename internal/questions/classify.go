package questions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kitsunehq/kitsune-backend/internal/cache"
	"github.com/kitsunehq/kitsune-backend/internal/config"
	"github.com/kitsunehq/kitsune-backend/internal/models"
)

// VerdictKind enumerates the closed set of classifier outcomes.
type VerdictKind int

const (
	// VerdictNoAction leaves the question untouched.
	VerdictNoAction VerdictKind = iota
	// VerdictSpam marks the question as spam.
	VerdictSpam
	// VerdictFlagReview queues the question for human review.
	VerdictFlagReview
	// VerdictReclassify moves the question onto a different topic.
	VerdictReclassify
)

// Verdict is a classifier outcome. Reason carries the rationale for
// FlagReview and Reclassify; Topic carries the (possibly hierarchical) topic
// label for Reclassify.
type Verdict struct {
	Kind   VerdictKind
	Reason string
	Topic  string
}

// Classifier is the external content classifier. Implementations live
// outside this package (see internal/llm).
type Classifier interface {
	ClassifyQuestion(ctx context.Context, q *models.Question) (Verdict, error)
}

// ClassifyQuestion runs the external classifier over a freshly created
// question and applies the outcome. Without a configured classifier the
// question is timestamped into the human moderation queue instead.
func (s *Service) ClassifyQuestion(ctx context.Context, questionID int) error {
	db := s.db.WithContext(ctx)

	var q models.Question
	if err := db.First(&q, questionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Info("question deleted before classification", "question_id", questionID)
			return nil
		}
		return fmt.Errorf("classify question: %w", err)
	}

	if s.classifier == nil {
		return db.Model(&q).UpdateColumn("moderation_timestamp", time.Now().UTC()).Error
	}

	verdict, err := s.classifier.ClassifyQuestion(ctx, &q)
	if err != nil {
		return fmt.Errorf("classify question %d: %w", questionID, err)
	}
	return s.ProcessClassificationResult(ctx, &q, verdict)
}

// ProcessClassificationResult applies exactly one moderation outcome. The
// switch is exhaustive over VerdictKind.
func (s *Service) ProcessClassificationResult(ctx context.Context, q *models.Question, v Verdict) error {
	bot, err := s.moderationBot(ctx)
	if err != nil {
		return err
	}

	switch v.Kind {
	case VerdictSpam:
		return s.MarkQuestionAsSpam(ctx, q, bot.ID)

	case VerdictFlagReview:
		flag := models.FlaggedObject{
			ContentType: "question",
			ObjectID:    q.ID,
			Status:      models.FlagStatusPending,
			Reason:      models.FlagReasonSpam,
			Notes:       v.Reason,
			CreatorID:   bot.ID,
		}
		if err := s.db.WithContext(ctx).Create(&flag).Error; err != nil {
			return fmt.Errorf("flag question for review: %w", err)
		}
		return nil

	case VerdictReclassify:
		return s.reclassify(ctx, q, v, bot.ID)

	case VerdictNoAction:
		return nil

	default:
		return fmt.Errorf("unknown verdict kind %d", v.Kind)
	}
}

// reclassify resolves the classifier's topic label, moves the question onto
// it (and swaps the matching tag), and records an accepted moderation flag
// carrying the rationale. The question stays visible throughout.
func (s *Service) reclassify(ctx context.Context, q *models.Question, v Verdict, botID int) error {
	db := s.db.WithContext(ctx)

	title := MostSpecificTopic(v.Topic)

	var topic models.Topic
	if err := db.Where("title = ? AND visible = ?", title, true).First(&topic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("classifier returned unknown topic", "question_id", q.ID, "topic", v.Topic)
			return nil
		}
		return fmt.Errorf("reclassify question: %w", err)
	}

	if q.TopicID == nil || *q.TopicID != topic.ID {
		if q.TopicID != nil {
			var old models.Topic
			if err := db.First(&old, *q.TopicID).Error; err == nil {
				if err := s.removeTag(ctx, q, old.Slug); err != nil {
					return err
				}
			}
		}
		if err := db.Model(q).UpdateColumn("topic_id", topic.ID).Error; err != nil {
			return fmt.Errorf("reclassify question: %w", err)
		}
		q.TopicID = &topic.ID
	}
	if err := s.addTag(ctx, q, topic.Slug); err != nil {
		return err
	}

	flag := models.FlaggedObject{
		ContentType: "question",
		ObjectID:    q.ID,
		Status:      models.FlagStatusAccepted,
		Reason:      models.FlagReasonContentModeration,
		Notes:       v.Reason,
		CreatorID:   botID,
	}
	if err := db.Create(&flag).Error; err != nil {
		return fmt.Errorf("record moderation flag: %w", err)
	}

	s.cache.Invalidate(ctx, "question", q.ID, cache.FieldTags)
	return nil
}

func (s *Service) addTag(ctx context.Context, q *models.Question, slug string) error {
	db := s.db.WithContext(ctx)
	tag := models.Tag{Name: slug, Slug: slug}
	if err := db.Where("slug = ?", slug).FirstOrCreate(&tag).Error; err != nil {
		return fmt.Errorf("add tag %q: %w", slug, err)
	}
	if err := db.Model(q).Association("Tags").Append(&tag); err != nil {
		return fmt.Errorf("add tag %q: %w", slug, err)
	}
	return nil
}

func (s *Service) removeTag(ctx context.Context, q *models.Question, slug string) error {
	db := s.db.WithContext(ctx)
	var tag models.Tag
	if err := db.Where("slug = ?", slug).First(&tag).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("remove tag %q: %w", slug, err)
	}
	if err := db.Model(q).Association("Tags").Delete(&tag); err != nil {
		return fmt.Errorf("remove tag %q: %w", slug, err)
	}
	return nil
}

// moderationBot fetches (creating on first use) the system user that
// automated moderation acts as.
func (s *Service) moderationBot(ctx context.Context) (*models.User, error) {
	username := config.BotUsername()
	bot := models.User{
		Username:    username,
		Email:       username + "@localhost",
		Password:    "!", // unusable password; the bot never logs in
		IsModerator: true,
	}
	err := s.db.WithContext(ctx).Where("username = ?", username).FirstOrCreate(&bot).Error
	if err != nil {
		return nil, fmt.Errorf("moderation bot user: %w", err)
	}
	return &bot, nil
}

// Hierarchical topic labels split on these tokens. Bare "-" and "/" only
// count when space-padded, so titles like "Add-ons" or
// "Blocked application/service/website" survive intact.
var topicSeparators = regexp.MustCompile(`\s+[-/]\s+|\s*(?:::|[.>;:|])\s*`)

// MostSpecificTopic returns the leaf label of a possibly hierarchical topic
// path: the last non-empty segment, trimmed.
func MostSpecificTopic(title string) string {
	parts := topicSeparators.Split(title, -1)
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(parts[i]); p != "" {
			return p
		}
	}
	return strings.TrimSpace(title)
}
