package questions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitsunehq/kitsune-backend/internal/config"
	"github.com/kitsunehq/kitsune-backend/internal/models"
)

func TestMostSpecificTopic(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Firefox > Privacy and security > Cookies", "Cookies"},
		{"Settings::Sync", "Sync"},
		{"Browsing.Tabs", "Tabs"},
		{"Tips | Tricks", "Tricks"},
		{"Performance; Memory", "Memory"},
		{"Installation: Updates", "Updates"},
		{"Desktop - Crashes", "Crashes"},
		{"Desktop / Crashes", "Crashes"},
		// Bare hyphens and slashes are part of the label, not separators.
		{"Add-ons", "Add-ons"},
		{"Blocked application/service/website", "Blocked application/service/website"},
		{"Cookies", "Cookies"},
		{"Firefox > ", "Firefox"},
		{"  padded  ", "padded"},
		{"", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, MostSpecificTopic(tc.in), "input %q", tc.in)
	}
}

func TestProcessClassificationResultSpam(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	q := createTestQuestion(t, asker)

	require.NoError(t, svc.ProcessClassificationResult(ctx, q, Verdict{Kind: VerdictSpam}))

	var got models.Question
	require.NoError(t, testDB.First(&got, q.ID).Error)
	assert.True(t, got.IsSpam)
	assert.NotNil(t, got.MarkedAsSpam)

	var bot models.User
	require.NoError(t, testDB.Where("username = ?", config.BotUsername()).First(&bot).Error)
	assert.True(t, bot.IsModerator)
	require.NotNil(t, got.MarkedAsSpamByID)
	assert.Equal(t, bot.ID, *got.MarkedAsSpamByID)
}

func TestProcessClassificationResultFlagReview(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	q := createTestQuestion(t, asker)

	v := Verdict{Kind: VerdictFlagReview, Reason: "looks like a repost of known spam"}
	require.NoError(t, svc.ProcessClassificationResult(ctx, q, v))

	var got models.Question
	require.NoError(t, testDB.First(&got, q.ID).Error)
	assert.False(t, got.IsSpam, "the question itself is untouched")

	var flag models.FlaggedObject
	require.NoError(t, testDB.Where("content_type = ? AND object_id = ?", "question", q.ID).
		First(&flag).Error)
	assert.Equal(t, models.FlagStatusPending, flag.Status)
	assert.Equal(t, models.FlagReasonSpam, flag.Reason)
	assert.Equal(t, v.Reason, flag.Notes)
}

func TestProcessClassificationResultReclassify(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	q := createTestQuestion(t, asker)

	oldTopic := models.Topic{Title: "General", Slug: "general"}
	require.NoError(t, testDB.Create(&oldTopic).Error)
	newTopic := models.Topic{Title: "Cookies", Slug: "cookies"}
	require.NoError(t, testDB.Create(&newTopic).Error)

	require.NoError(t, testDB.Model(q).UpdateColumn("topic_id", oldTopic.ID).Error)
	q.TopicID = &oldTopic.ID
	require.NoError(t, svc.addTag(ctx, q, oldTopic.Slug))

	v := Verdict{
		Kind:   VerdictReclassify,
		Topic:  "Firefox > Privacy and security > Cookies",
		Reason: "question is about cookie prompts",
	}
	require.NoError(t, svc.ProcessClassificationResult(ctx, q, v))

	var got models.Question
	require.NoError(t, testDB.Preload("Tags").First(&got, q.ID).Error)
	require.NotNil(t, got.TopicID)
	assert.Equal(t, newTopic.ID, *got.TopicID)

	slugs := make([]string, 0, len(got.Tags))
	for _, tag := range got.Tags {
		slugs = append(slugs, tag.Slug)
	}
	assert.Contains(t, slugs, "cookies")
	assert.NotContains(t, slugs, "general", "the old topic's tag is swapped out")

	var flag models.FlaggedObject
	require.NoError(t, testDB.Where("content_type = ? AND object_id = ?", "question", q.ID).
		First(&flag).Error)
	assert.Equal(t, models.FlagStatusAccepted, flag.Status)
	assert.Equal(t, models.FlagReasonContentModeration, flag.Reason)
	assert.Equal(t, v.Reason, flag.Notes)
}

func TestProcessClassificationResultUnknownTopic(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	q := createTestQuestion(t, asker)

	v := Verdict{Kind: VerdictReclassify, Topic: "No Such Topic"}
	require.NoError(t, svc.ProcessClassificationResult(ctx, q, v))

	var got models.Question
	require.NoError(t, testDB.First(&got, q.ID).Error)
	assert.Nil(t, got.TopicID, "an unknown topic leaves the question unchanged")
}

func TestProcessClassificationResultHiddenTopic(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	q := createTestQuestion(t, asker)

	hidden := models.Topic{Title: "Cookies", Slug: "cookies", Visible: false}
	require.NoError(t, testDB.Create(&hidden).Error)
	// default:true means the zero value must be forced off.
	require.NoError(t, testDB.Model(&hidden).UpdateColumn("visible", false).Error)

	v := Verdict{Kind: VerdictReclassify, Topic: "Cookies"}
	require.NoError(t, svc.ProcessClassificationResult(ctx, q, v))

	var got models.Question
	require.NoError(t, testDB.First(&got, q.ID).Error)
	assert.Nil(t, got.TopicID, "hidden topics are never assigned")
}

func TestProcessClassificationResultNoAction(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	q := createTestQuestion(t, asker)

	require.NoError(t, svc.ProcessClassificationResult(ctx, q, Verdict{Kind: VerdictNoAction}))

	var flags int64
	require.NoError(t, testDB.Model(&models.FlaggedObject{}).Count(&flags).Error)
	assert.EqualValues(t, 0, flags)
}

func TestClassifyQuestionWithoutClassifier(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)
	ctx := context.Background()

	asker := createTestUser(t)
	q := createTestQuestion(t, asker)

	// No classifier configured: the question lands in the human moderation
	// queue via its timestamp.
	require.NoError(t, svc.ClassifyQuestion(ctx, q.ID))

	var got models.Question
	require.NoError(t, testDB.First(&got, q.ID).Error)
	assert.NotNil(t, got.ModerationTimestamp)
}

func TestClassifyQuestionMissing(t *testing.T) {
	resetTables(t)
	svc := newTestService(t)

	assert.NoError(t, svc.ClassifyQuestion(context.Background(), 999999))
}
