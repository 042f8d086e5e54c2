package config

import (
	"os"
	"strconv"
	"time"
)

const (
	// AnswersPerPage is the fixed bucket size for answer page assignment.
	AnswersPerPage = 20

	// QuestionsPerPage is the default page size for question listings.
	QuestionsPerPage = 20

	// VoteMetadataMaxLength caps the stored length of a vote metadata value.
	VoteMetadataMaxLength = 1000

	// VoteRecencyWindow is the trailing interval used for the
	// num_votes_past_week counter on questions.
	VoteRecencyWindow = 7 * 24 * time.Hour

	// TakeTimeout is how long a moderator's claim on a question lasts.
	TakeTimeout = 10 * time.Minute

	// AnalyticsBufferSize is how many (question, visits) pairs are buffered
	// before a delete+insert pass against question_visits.
	AnalyticsBufferSize = 30000

	// AnalyticsInsertBatchSize bounds a single bulk insert so we stay well
	// under any query payload limit.
	AnalyticsInsertBatchSize = 1000

	// VoteChunkSize is how many questions a single vote-refresh chunk covers.
	VoteChunkSize = 1000
)

// SpamRetention returns how long spam content is kept before the cleanup job
// deletes it. Controlled by SPAM_RETENTION_DAYS, defaulting to 90 days.
func SpamRetention() time.Duration {
	days := 90
	if v := os.Getenv("SPAM_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	return time.Duration(days) * 24 * time.Hour
}

// BotUsername is the system user that automated moderation acts as.
func BotUsername() string {
	if v := os.Getenv("MODERATION_BOT_USERNAME"); v != "" {
		return v
	}
	return "kitsune-bot"
}
