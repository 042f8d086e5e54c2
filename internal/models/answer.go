package models

import "time"

// Answer is a reply to a support question.
//
// Page is a monotonic bucketing of the question's non-spam answers ordered by
// creation time, AnswersPerPage per bucket. The value written at creation time
// is an optimistic hint derived from the parent's answer count; the
// asynchronous recompute is authoritative after any deletion or spam marking.
type Answer struct {
	ID         int      `gorm:"primaryKey" json:"id"`
	QuestionID int      `gorm:"index" json:"question_id"`
	Question   Question `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"-"`
	CreatorID  int      `json:"creator_id"`
	Creator    User     `gorm:"foreignKey:CreatorID;constraint:OnDelete:CASCADE" json:"creator"`
	Content    string   `gorm:"not null" json:"content"`

	UpdatedByID *int `json:"updated_by_id,omitempty"`

	Page int `gorm:"default:1" json:"page"`

	IsSpam           bool       `json:"is_spam"`
	MarkedAsSpam     *time.Time `json:"marked_as_spam,omitempty"`
	MarkedAsSpamByID *int       `json:"marked_as_spam_by_id,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateAnswerRequest struct {
	Content string `json:"content"`
}
