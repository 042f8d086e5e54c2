package questions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitsunehq/kitsune-backend/internal/models"
)

func TestCreateAnswerAssignsPageAndAggregates(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	replier := createTestUser(t)
	q := createTestQuestion(t, asker)

	a := &models.Answer{QuestionID: q.ID, CreatorID: replier.ID, Content: "first"}
	require.NoError(t, svc.CreateAnswer(ctx, a))
	assert.Equal(t, 1, a.Page)

	var got models.Question
	require.NoError(t, testDB.First(&got, q.ID).Error)
	assert.Equal(t, 1, got.NumAnswers)
	require.NotNil(t, got.LastAnswerID)
	assert.Equal(t, a.ID, *got.LastAnswerID)
}

func TestCreateAnswerPageRollsOver(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	replier := createTestUser(t)
	q := createTestQuestion(t, asker)

	for i := 0; i < 20; i++ {
		a := &models.Answer{QuestionID: q.ID, CreatorID: replier.ID, Content: "reply"}
		require.NoError(t, svc.CreateAnswer(ctx, a))
		assert.Equal(t, 1, a.Page)
	}

	// The 21st answer opens page two.
	a := &models.Answer{QuestionID: q.ID, CreatorID: replier.ID, Content: "reply"}
	require.NoError(t, svc.CreateAnswer(ctx, a))
	assert.Equal(t, 2, a.Page)
}

func TestDeleteAnswerReassignsPointers(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	replier := createTestUser(t)
	q := createTestQuestion(t, asker)

	base := time.Now().UTC().Add(-time.Hour)
	a1 := createTestAnswer(t, q, replier, base)
	a2 := createTestAnswer(t, q, replier, base.Add(time.Minute))
	a3 := createTestAnswer(t, q, replier, base.Add(2*time.Minute))
	_ = a1

	require.NoError(t, svc.refreshAnswerAggregates(ctx, q.ID))
	require.NoError(t, testDB.First(q, q.ID).Error)
	require.NoError(t, svc.SolveQuestion(ctx, q, a3.ID, asker.ID))
	require.NoError(t, testDB.First(q, q.ID).Error)

	// Deleting the newest answer moves last_answer_id back and clears the
	// solution that pointed at it.
	require.NoError(t, svc.DeleteAnswer(ctx, a3))

	var got models.Question
	require.NoError(t, testDB.First(&got, q.ID).Error)
	assert.Equal(t, 2, got.NumAnswers)
	require.NotNil(t, got.LastAnswerID)
	assert.Equal(t, a2.ID, *got.LastAnswerID)
	assert.Nil(t, got.SolutionID)
}

func TestDeleteOnlyAnswer(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	replier := createTestUser(t)
	q := createTestQuestion(t, asker)

	a := createTestAnswer(t, q, replier, time.Now().UTC())
	require.NoError(t, svc.refreshAnswerAggregates(ctx, q.ID))

	require.NoError(t, svc.DeleteAnswer(ctx, a))

	var got models.Question
	require.NoError(t, testDB.First(&got, q.ID).Error)
	assert.Equal(t, 0, got.NumAnswers)
	assert.Nil(t, got.LastAnswerID)
}

func TestSolveAndUnsolve(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	replier := createTestUser(t)
	q := createTestQuestion(t, asker)
	a := createTestAnswer(t, q, replier, time.Now().UTC())

	require.NoError(t, svc.SolveQuestion(ctx, q, a.ID, asker.ID))
	assert.True(t, q.IsSolved())

	meta, err := svc.Metadata(ctx, q.ID)
	require.NoError(t, err)
	assert.Contains(t, meta, "solver_id")

	require.NoError(t, svc.UnsolveQuestion(ctx, q))
	assert.False(t, q.IsSolved())

	meta, err = svc.Metadata(ctx, q.ID)
	require.NoError(t, err)
	assert.NotContains(t, meta, "solver_id")
}

func TestSolveRejectsForeignAnswer(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	replier := createTestUser(t)
	q := createTestQuestion(t, asker)
	other := createTestQuestion(t, asker)
	a := createTestAnswer(t, other, replier, time.Now().UTC())

	assert.Error(t, svc.SolveQuestion(ctx, q, a.ID, asker.ID))
}

func TestMetadataUpsertAndClear(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	q := createTestQuestion(t, asker)

	require.NoError(t, svc.AddMetadata(ctx, q.ID, map[string]string{
		"useragent":  "Mozilla/5.0",
		"product":    "firefox",
		"ff_version": "128.0",
	}))

	// Writing the same name again overwrites, never duplicates.
	require.NoError(t, svc.AddMetadata(ctx, q.ID, map[string]string{"ff_version": "129.0"}))

	meta, err := svc.Metadata(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "129.0", meta["ff_version"])
	assert.Len(t, meta, 3)

	require.NoError(t, svc.ClearMutableMetadata(ctx, q.ID))

	meta, err = svc.Metadata(ctx, q.ID)
	require.NoError(t, err)
	assert.Contains(t, meta, "useragent")
	assert.Contains(t, meta, "product")
	assert.NotContains(t, meta, "ff_version")
}

func TestRemoveMetadata(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	q := createTestQuestion(t, asker)

	require.NoError(t, svc.AddMetadata(ctx, q.ID, map[string]string{"category": "crash"}))
	require.NoError(t, svc.RemoveMetadata(ctx, q.ID, "category"))

	meta, err := svc.Metadata(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, meta)
}
