package questions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kitsunehq/kitsune-backend/internal/models"
)

func markSpamAt(t *testing.T, model any, when time.Time, byUserID int) {
	t.Helper()
	require.NoError(t, testDB.Model(model).UpdateColumns(map[string]any{
		"is_spam":              true,
		"marked_as_spam":       when,
		"marked_as_spam_by_id": byUserID,
	}).Error)
}

func TestMarkAnswerAsSpamRefreshesAggregates(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	replier := createTestUser(t)
	mod := createTestUser(t)
	q := createTestQuestion(t, asker)

	base := time.Now().UTC().Add(-time.Hour)
	a1 := createTestAnswer(t, q, replier, base)
	a2 := createTestAnswer(t, q, replier, base.Add(time.Minute))

	require.NoError(t, svc.refreshAnswerAggregates(ctx, q.ID))

	// The newest answer turns out to be spam.
	require.NoError(t, svc.MarkAnswerAsSpam(ctx, a2, mod.ID))

	var got models.Question
	require.NoError(t, testDB.First(&got, q.ID).Error)
	assert.Equal(t, 1, got.NumAnswers)
	require.NotNil(t, got.LastAnswerID)
	assert.Equal(t, a1.ID, *got.LastAnswerID)

	var gotAnswer models.Answer
	require.NoError(t, testDB.First(&gotAnswer, a2.ID).Error)
	assert.True(t, gotAnswer.IsSpam)
	assert.NotNil(t, gotAnswer.MarkedAsSpam)
	require.NotNil(t, gotAnswer.MarkedAsSpamByID)
	assert.Equal(t, mod.ID, *gotAnswer.MarkedAsSpamByID)
}

func TestMarkUserContentAsSpam(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	spammer := createTestUser(t)
	other := createTestUser(t)
	mod := createTestUser(t)

	q1 := createTestQuestion(t, spammer)
	q2 := createTestQuestion(t, other)
	createTestAnswer(t, q2, spammer, time.Now().UTC())
	keep := createTestAnswer(t, q2, other, time.Now().UTC())

	require.NoError(t, svc.MarkUserContentAsSpam(ctx, spammer.ID, mod.ID))

	var gotQ1, gotQ2 models.Question
	require.NoError(t, testDB.First(&gotQ1, q1.ID).Error)
	require.NoError(t, testDB.First(&gotQ2, q2.ID).Error)
	assert.True(t, gotQ1.IsSpam)
	assert.False(t, gotQ2.IsSpam)

	var spamAnswers int64
	require.NoError(t, testDB.Model(&models.Answer{}).
		Where("creator_id = ? AND is_spam = ?", spammer.ID, true).
		Count(&spamAnswers).Error)
	assert.EqualValues(t, 1, spamAnswers)

	var gotKeep models.Answer
	require.NoError(t, testDB.First(&gotKeep, keep.ID).Error)
	assert.False(t, gotKeep.IsSpam)
}

func TestCleanupOldSpam(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	replier := createTestUser(t)
	mod := createTestUser(t)

	old := time.Now().UTC().Add(-91 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)

	// An old spam question whose answers go with it via cascade. Those
	// answers must not show up in the answer count.
	spamQ := createTestQuestion(t, asker)
	cascaded := createTestAnswer(t, spamQ, replier, recent)
	markSpamAt(t, spamQ, old, mod.ID)
	markSpamAt(t, cascaded, old, mod.ID)

	// An old spam answer under a live question is deleted on its own.
	liveQ := createTestQuestion(t, asker)
	spamA := createTestAnswer(t, liveQ, replier, recent)
	markSpamAt(t, spamA, old, mod.ID)

	// Recently marked spam stays within the retention window.
	recentQ := createTestQuestion(t, asker)
	markSpamAt(t, recentQ, recent, mod.ID)

	result, err := svc.CleanupOldSpam(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.QuestionsDeleted)
	assert.Equal(t, 1, result.AnswersDeleted, "cascaded answers are not counted")

	assert.ErrorIs(t, testDB.First(&models.Question{}, spamQ.ID).Error, gorm.ErrRecordNotFound)
	assert.ErrorIs(t, testDB.First(&models.Answer{}, cascaded.ID).Error, gorm.ErrRecordNotFound)
	assert.ErrorIs(t, testDB.First(&models.Answer{}, spamA.ID).Error, gorm.ErrRecordNotFound)
	assert.NoError(t, testDB.First(&models.Question{}, liveQ.ID).Error)
	assert.NoError(t, testDB.First(&models.Question{}, recentQ.ID).Error)
}
