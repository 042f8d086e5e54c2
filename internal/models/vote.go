package models

import "time"

// QuestionVote is an "I have this problem too" vote. The voter is either an
// authenticated user (creator_id) or an anonymous id. Nothing at the schema
// level prevents the same identity voting twice on the same question; callers
// are expected to check first (see handlers).
type QuestionVote struct {
	ID          int       `gorm:"primaryKey" json:"id"`
	QuestionID  int       `gorm:"index" json:"question_id"`
	Question    Question  `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"-"`
	CreatorID   *int      `json:"creator_id,omitempty"`
	AnonymousID string    `gorm:"size:40;index" json:"anonymous_id,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// AnswerVote is a helpful / not helpful vote on an answer.
type AnswerVote struct {
	ID          int       `gorm:"primaryKey" json:"id"`
	AnswerID    int       `gorm:"index" json:"answer_id"`
	Answer      Answer    `gorm:"foreignKey:AnswerID;constraint:OnDelete:CASCADE" json:"-"`
	Helpful     bool      `json:"helpful"`
	CreatorID   *int      `json:"creator_id,omitempty"`
	AnonymousID string    `gorm:"size:40;index" json:"anonymous_id,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// Vote target types for VoteMetadata.
const (
	VoteTypeQuestion = "question"
	VoteTypeAnswer   = "answer"
)

// VoteMetadata is an arbitrary key/value entry attached to a vote. Values are
// truncated to VoteMetadataMaxLength before insert.
type VoteMetadata struct {
	ID       int    `gorm:"primaryKey" json:"id"`
	VoteType string `gorm:"size:20;index:idx_vote_metadata_target" json:"vote_type"`
	VoteID   int    `gorm:"index:idx_vote_metadata_target" json:"vote_id"`
	Key      string `gorm:"size:40;index" json:"key"`
	Value    string `gorm:"size:1000" json:"value"`
}
