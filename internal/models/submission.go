package models

import (
	"time"
)

type SubmissionStatus string

const (
	SubmissionInProgress SubmissionStatus = "in_progress"
	SubmissionCompleted  SubmissionStatus = "completed"
	SubmissionFinalized  SubmissionStatus = "finalized"
)

const (
	EndReasonCompleted  = "completed"
	EndReasonTimeout    = "timeout"
	EndReasonProctoring = "proctoring_limit"
	EndReasonFinished   = "finished_by_student"
)

// Submission is one student's attempt at an exam. It is created by
// SessionService.Start, mutated only by the session state machine while
// in progress, and becomes immutable once IsFinalized is set.
type Submission struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	ExamID    uint   `json:"exam_id" gorm:"not null;index;uniqueIndex:idx_exam_student_open,where:status = 'in_progress'"`
	StudentID string `json:"student_id" gorm:"not null;size:255;index;uniqueIndex:idx_exam_student_open,where:status = 'in_progress'"`

	Status          SubmissionStatus `json:"status" gorm:"not null;default:in_progress;index"`
	AbilityEstimate float64          `json:"ability_estimate" gorm:"not null;default:0.5"`
	InfractionCount int              `json:"infraction_count" gorm:"not null;default:0"`
	TotalScore      float64          `json:"total_score" gorm:"not null;default:0"`
	IsFinalized     bool             `json:"is_finalized" gorm:"not null;default:false"`

	TeacherRemarks *string `json:"teacher_remarks" gorm:"type:text"`
	EndReason      *string `json:"end_reason" gorm:"size:50"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	CompletedAt *time.Time `json:"completed_at"`
	FinalizedAt *time.Time `json:"finalized_at"`

	// Version backs optimistic concurrency checks on the read-modify-write
	// cycle of the session state machine.
	Version int `json:"version" gorm:"not null;default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Exam    *ExamDefinition `json:"exam,omitempty" gorm:"foreignKey:ExamID"`
	Student *User           `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Served  []ServedItem    `json:"served,omitempty" gorm:"foreignKey:SubmissionID"`
	Answers []Answer        `json:"answers,omitempty" gorm:"foreignKey:SubmissionID"`
}

func (Submission) TableName() string {
	return "submissions"
}

// ServedItem records that an item was issued to a submission. Only served
// items may be answered, and served-but-unanswered items are zero-scored
// when a session is forced to completion.
type ServedItem struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	SubmissionID uint      `json:"submission_id" gorm:"not null;index;uniqueIndex:idx_served_submission_item"`
	ItemID       uint      `json:"item_id" gorm:"not null;uniqueIndex:idx_served_submission_item"`
	ServedAt     time.Time `json:"served_at" gorm:"not null"`

	Submission *Submission `json:"-" gorm:"foreignKey:SubmissionID"`
	Item       *Item       `json:"-" gorm:"foreignKey:ItemID"`
}

func (ServedItem) TableName() string {
	return "served_items"
}

// Answer is the graded response to one served item. CurrentScore starts
// equal to AIScore and may be overridden by a teacher through the review
// service while the parent submission is not finalized.
type Answer struct {
	ID           uint `json:"id" gorm:"primaryKey"`
	SubmissionID uint `json:"submission_id" gorm:"not null;index;uniqueIndex:idx_answer_submission_item"`
	ItemID       uint `json:"item_id" gorm:"not null;uniqueIndex:idx_answer_submission_item"`

	RawInput      *string `json:"raw_input" gorm:"type:text"`
	ImagePath     *string `json:"image_path" gorm:"size:500"`
	ExtractedText *string `json:"extracted_text" gorm:"type:text"`

	AIScore              float64  `json:"ai_score" gorm:"not null;default:0"`
	CurrentScore         float64  `json:"current_score" gorm:"not null;default:0"`
	Similarity           *float64 `json:"similarity"`
	FeedbackText         string   `json:"feedback_text" gorm:"type:text"`
	TeacherRemarks       *string  `json:"teacher_remarks" gorm:"type:text"`
	FlaggedForPlagiarism bool     `json:"flagged_for_plagiarism" gorm:"not null;default:false"`

	AnsweredAt time.Time `json:"answered_at" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Submission *Submission `json:"-" gorm:"foreignKey:SubmissionID"`
	Item       *Item       `json:"item,omitempty" gorm:"foreignKey:ItemID"`
}

func (Answer) TableName() string {
	return "answers"
}
