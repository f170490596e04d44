package models

import (
	"time"
)

// ReviewAuditLog records one teacher override applied to an answer, with
// the score before and after. One row is written per override so the
// delta history of a submission's review can be reconstructed.
type ReviewAuditLog struct {
	ID           uint  `json:"id" gorm:"primaryKey"`
	SubmissionID uint  `json:"submission_id" gorm:"not null;index"`
	AnswerID     *uint `json:"answer_id" gorm:"index"`

	ReviewerID    string  `json:"reviewer_id" gorm:"not null;size:255;index"`
	PreviousScore float64 `json:"previous_score"`
	NewScore      float64 `json:"new_score"`
	Remarks       *string `json:"remarks" gorm:"type:text"`
	Finalized     bool    `json:"finalized" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`

	Submission *Submission `json:"-" gorm:"foreignKey:SubmissionID"`
	Answer     *Answer     `json:"-" gorm:"foreignKey:AnswerID"`
	Reviewer   *User       `json:"-" gorm:"foreignKey:ReviewerID"`
}

func (ReviewAuditLog) TableName() string {
	return "review_audit_logs"
}
