package events

import (
	"time"
)

// EventType represents the session lifecycle events emitted by the engine.
type EventType string

const (
	EventSessionStarted      EventType = "session.started"
	EventAnswerGraded        EventType = "session.answer_graded"
	EventSessionCompleted    EventType = "session.completed"
	EventSubmissionFinalized EventType = "submission.finalized"
	EventProctoringViolation EventType = "session.proctoring_violation"
)

// SessionEvent is the envelope for all published events.
type SessionEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type SessionStartedEvent struct {
	SubmissionID uint   `json:"submission_id"`
	ExamID       uint   `json:"exam_id"`
	ExamTitle    string `json:"exam_title"`
	StudentID    string `json:"student_id"`
	Adaptive     bool   `json:"adaptive"`
	FirstItemID  uint   `json:"first_item_id"`
}

type AnswerGradedEvent struct {
	SubmissionID uint     `json:"submission_id"`
	ItemID       uint     `json:"item_id"`
	StudentID    string   `json:"student_id"`
	Score        float64  `json:"score"`
	MaxPoints    int      `json:"max_points"`
	Similarity   *float64 `json:"similarity,omitempty"`
	Flagged      bool     `json:"flagged"`
}

type SessionCompletedEvent struct {
	SubmissionID  uint    `json:"submission_id"`
	ExamID        uint    `json:"exam_id"`
	StudentID     string  `json:"student_id"`
	TotalScore    float64 `json:"total_score"`
	AnsweredCount int     `json:"answered_count"`
	EndReason     string  `json:"end_reason"`
}

type SubmissionFinalizedEvent struct {
	SubmissionID uint    `json:"submission_id"`
	ExamID       uint    `json:"exam_id"`
	StudentID    string  `json:"student_id"`
	ReviewerID   string  `json:"reviewer_id"`
	TotalScore   float64 `json:"total_score"`
	Passed       bool    `json:"passed"`
}

type ProctoringViolationEvent struct {
	SubmissionID    uint   `json:"submission_id"`
	StudentID       string `json:"student_id"`
	InfractionCount int    `json:"infraction_count"`
	Ceiling         int    `json:"ceiling"`
	SessionEnded    bool   `json:"session_ended"`
}
