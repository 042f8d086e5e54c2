package models

import "time"

// Question is a support question asked by a user.
//
// num_answers, last_answer_id, solution_id and num_votes_past_week are
// denormalized aggregates. They are always derived in full from the source
// rows (answers, votes) rather than patched incrementally, so any repeated or
// out-of-order refresh converges to the same values.
type Question struct {
	ID        int    `gorm:"primaryKey" json:"id"`
	Title     string `gorm:"size:255;not null" json:"title"`
	Content   string `json:"content"`
	CreatorID int    `json:"creator_id"`
	Creator   User   `gorm:"foreignKey:CreatorID;constraint:OnDelete:CASCADE" json:"creator"`

	UpdatedByID *int `json:"updated_by_id,omitempty"`

	ProductID *int     `json:"product_id,omitempty"`
	Product   *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	TopicID   *int     `json:"topic_id,omitempty"`
	Topic     *Topic   `gorm:"foreignKey:TopicID" json:"topic,omitempty"`

	Tags []Tag `gorm:"many2many:question_tags" json:"tags,omitempty"`

	IsLocked   bool `json:"is_locked"`
	IsArchived bool `json:"is_archived"`

	IsSpam           bool       `json:"is_spam"`
	MarkedAsSpam     *time.Time `json:"marked_as_spam,omitempty"`
	MarkedAsSpamByID *int       `json:"marked_as_spam_by_id,omitempty"`

	// A "taken" claim is a temporary exclusive lease a moderator places on a
	// question while working it. A claim with taken_until in the past is
	// equivalent to no claim.
	TakenByID  *int       `json:"taken_by_id,omitempty"`
	TakenUntil *time.Time `json:"taken_until,omitempty"`

	NumAnswers       int  `gorm:"default:0;index" json:"num_answers"`
	LastAnswerID     *int `json:"last_answer_id,omitempty"`
	SolutionID       *int `json:"solution_id,omitempty"`
	NumVotesPastWeek int  `gorm:"default:0;index" json:"num_votes_past_week"`

	ModerationTimestamp *time.Time `json:"moderation_timestamp,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

// Editable reports whether the question still accepts changes and replies.
func (q *Question) Editable() bool {
	return !q.IsLocked && !q.IsArchived
}

// IsSolved reports whether a solution answer has been chosen.
func (q *Question) IsSolved() bool {
	return q.SolutionID != nil
}

type CreateQuestionRequest struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	ProductID *int   `json:"product_id,omitempty"`
	TopicID   *int   `json:"topic_id,omitempty"`
}

// QuestionMetaData is a named value attached to a question (e.g. the product
// version or OS reported by the AAQ flow, or the solver_id once solved).
type QuestionMetaData struct {
	ID         int      `gorm:"primaryKey" json:"id"`
	QuestionID int      `gorm:"uniqueIndex:idx_question_metadata_name" json:"question_id"`
	Question   Question `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"-"`
	Name       string   `gorm:"size:50;uniqueIndex:idx_question_metadata_name" json:"name"`
	Value      string   `json:"value"`
}

// QuestionVisits caches the external page-view count for a question. Rows are
// fully replaced on each analytics sync, never incremented.
type QuestionVisits struct {
	ID         int      `gorm:"primaryKey" json:"id"`
	QuestionID int      `gorm:"uniqueIndex" json:"question_id"`
	Question   Question `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"-"`
	Visits     int      `gorm:"index" json:"visits"`
}
