package models

import "time"

// Flag statuses.
const (
	FlagStatusPending  = "pending"
	FlagStatusAccepted = "accepted"
	FlagStatusRejected = "rejected"
)

// Flag reasons.
const (
	FlagReasonSpam              = "spam"
	FlagReasonContentModeration = "content_moderation"
	FlagReasonAbuse             = "abuse"
	FlagReasonOther             = "other"
)

// FlaggedObject marks a question or answer for moderator review. Automated
// classification creates these too: pending when the classifier is unsure,
// accepted (with the rationale in notes) when it reassigned the topic itself.
type FlaggedObject struct {
	ID          int    `gorm:"primaryKey" json:"id"`
	ContentType string `gorm:"size:20;index:idx_flagged_target" json:"content_type"`
	ObjectID    int    `gorm:"index:idx_flagged_target" json:"object_id"`
	Status      string `gorm:"size:20;default:pending;index" json:"status"`
	Reason      string `gorm:"size:40" json:"reason"`
	Notes       string `json:"notes"`
	CreatorID   int    `json:"creator_id"`
	Creator     User   `gorm:"foreignKey:CreatorID;constraint:OnDelete:CASCADE" json:"creator"`

	AssigneeID        *int       `json:"assignee_id,omitempty"`
	AssignedTimestamp *time.Time `json:"assigned_timestamp,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
