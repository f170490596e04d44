package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adaptix-edu/exam-service/internal/adaptive"
	"github.com/adaptix-edu/exam-service/internal/config"
	"github.com/adaptix-edu/exam-service/internal/events"
	"github.com/adaptix-edu/exam-service/internal/grading"
	"github.com/adaptix-edu/exam-service/internal/models"
	"github.com/adaptix-edu/exam-service/internal/repositories"
)

// SessionService drives one student's attempt through its lifecycle:
// in_progress -> completed -> finalized. It is the only component that
// creates submissions and answers.
type SessionService interface {
	Start(ctx context.Context, examID uint, studentID string) (*StartSessionResponse, error)
	SubmitAnswer(ctx context.Context, submissionID, itemID uint, payload *AnswerPayload, studentID string) (*SubmitAnswerResponse, error)
	SkipAnswer(ctx context.Context, submissionID, itemID uint, studentID string) (*SubmitAnswerResponse, error)
	Finish(ctx context.Context, submissionID uint, studentID string) (*SessionResultResponse, error)
	Timeout(ctx context.Context, submissionID uint) (*SessionResultResponse, error)
	RecordInfraction(ctx context.Context, submissionID uint) (*InfractionResponse, error)
	GetByIDWithDetails(ctx context.Context, submissionID uint, userID string) (*models.Submission, error)
}

// AnswerPayload carries one submitted answer. Text and Image are both
// optional; free-text items with an image go through OCR first.
type AnswerPayload struct {
	Text      *string
	Image     []byte
	ImagePath *string
}

// ItemView is the student-facing projection of an item. It never carries
// the correct choice or the reference answer.
type ItemView struct {
	ID           uint                  `json:"id"`
	QuestionText string                `json:"question_text"`
	Kind         models.ItemKind       `json:"kind"`
	Points       int                   `json:"points"`
	Options      []models.ChoiceOption `json:"options,omitempty"`
}

type StartSessionResponse struct {
	SubmissionID    uint      `json:"submission_id"`
	ExamID          uint      `json:"exam_id"`
	ExamTitle       string    `json:"exam_title"`
	DurationSeconds int       `json:"duration_seconds"`
	TotalItems      int       `json:"total_items"`
	StartedAt       time.Time `json:"started_at"`
	FirstItem       *ItemView `json:"first_item"`
}

type SubmitAnswerResponse struct {
	ItemID     uint      `json:"item_id"`
	Score      float64   `json:"score"`
	MaxPoints  int       `json:"max_points"`
	Feedback   string    `json:"feedback"`
	Similarity *float64  `json:"similarity,omitempty"`
	Flagged    bool      `json:"flagged_for_plagiarism"`
	NextItem   *ItemView `json:"next_item,omitempty"`
	Completed  bool      `json:"exam_complete"`
	TotalScore *float64  `json:"total_score,omitempty"`
}

type SessionResultResponse struct {
	SubmissionID  uint                    `json:"submission_id"`
	Status        models.SubmissionStatus `json:"status"`
	TotalScore    float64                 `json:"total_score"`
	AnsweredCount int                     `json:"answered_count"`
	EndReason     string                  `json:"end_reason"`
}

type InfractionResponse struct {
	SubmissionID    uint `json:"submission_id"`
	InfractionCount int  `json:"infraction_count"`
	Ceiling         int  `json:"ceiling"`
	SessionEnded    bool `json:"session_ended"`
}

type sessionService struct {
	repo      repositories.TransactionRepository
	grader    grading.Grader
	adaptive  adaptive.Engine
	fixed     adaptive.Engine
	publisher events.EventPublisher
	clock     Clock
	policy    config.Policy
	logger    *slog.Logger
}

func NewSessionService(
	repo repositories.TransactionRepository,
	grader grading.Grader,
	policy config.Policy,
	publisher events.EventPublisher,
	clock Clock,
	logger *slog.Logger,
) SessionService {
	return &sessionService{
		repo:      repo,
		grader:    grader,
		adaptive:  adaptive.NewEngine(policy),
		fixed:     adaptive.NewFixedOrderEngine(policy),
		publisher: publisher,
		clock:     clock,
		policy:    policy,
		logger:    logger,
	}
}

// engineFor picks the serving strategy for the exam.
func (s *sessionService) engineFor(exam *models.ExamDefinition) adaptive.Engine {
	if exam.AdaptiveEnabled {
		return s.adaptive
	}
	return s.fixed
}

// ===== START =====

func (s *sessionService) Start(ctx context.Context, examID uint, studentID string) (*StartSessionResponse, error) {
	s.logger.Info("Starting exam session", "exam_id", examID, "student_id", studentID)

	exam, err := s.repo.Exam().GetByIDWithItems(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	if exam.Status != models.ExamActive {
		return nil, ErrExamNotActive
	}
	if len(exam.Items) == 0 {
		return nil, ErrExamHasNoItems
	}

	active, err := s.repo.Submission().GetActive(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active submission: %w", err)
	}
	if active != nil {
		return nil, ErrAttemptAlreadyInProgress
	}

	engine := s.engineFor(exam)
	first := engine.SelectNext(itemPool(exam), nil, engine.InitialAbility())
	if first == nil {
		return nil, ErrExamHasNoItems
	}

	txRepo, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			txRepo.(repositories.TransactionRepository).Rollback(ctx)
		}
	}()

	now := s.clock.Now()
	submission := &models.Submission{
		ExamID:          examID,
		StudentID:       studentID,
		Status:          models.SubmissionInProgress,
		AbilityEstimate: engine.InitialAbility(),
		StartedAt:       now,
	}
	if err = txRepo.Submission().Create(ctx, submission); err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	if err = txRepo.Submission().RecordServed(ctx, &models.ServedItem{
		SubmissionID: submission.ID,
		ItemID:       first.ID,
		ServedAt:     now,
	}); err != nil {
		return nil, fmt.Errorf("failed to record served item: %w", err)
	}

	if err = txRepo.(repositories.TransactionRepository).Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.publish(ctx, events.NewSessionEvent(events.EventSessionStarted, events.SessionStartedEvent{
		SubmissionID: submission.ID,
		ExamID:       exam.ID,
		ExamTitle:    exam.Title,
		StudentID:    studentID,
		Adaptive:     exam.AdaptiveEnabled,
		FirstItemID:  first.ID,
	}))

	s.logger.Info("Exam session started",
		"submission_id", submission.ID,
		"exam_id", examID,
		"first_item_id", first.ID)

	return &StartSessionResponse{
		SubmissionID:    submission.ID,
		ExamID:          exam.ID,
		ExamTitle:       exam.Title,
		DurationSeconds: exam.DurationSeconds,
		TotalItems:      len(exam.Items),
		StartedAt:       now,
		FirstItem:       buildItemView(first),
	}, nil
}

// ===== SUBMIT / SKIP =====

func (s *sessionService) SubmitAnswer(ctx context.Context, submissionID, itemID uint, payload *AnswerPayload, studentID string) (*SubmitAnswerResponse, error) {
	if payload == nil {
		payload = &AnswerPayload{}
	}
	return s.processAnswer(ctx, submissionID, itemID, payload, studentID, false)
}

func (s *sessionService) SkipAnswer(ctx context.Context, submissionID, itemID uint, studentID string) (*SubmitAnswerResponse, error) {
	return s.processAnswer(ctx, submissionID, itemID, &AnswerPayload{}, studentID, true)
}

// processAnswer grades outside the submission lock, then performs a short
// locked write of the answer and the session transition.
func (s *sessionService) processAnswer(ctx context.Context, submissionID, itemID uint, payload *AnswerPayload, studentID string, skipped bool) (*SubmitAnswerResponse, error) {
	submission, exam, err := s.loadSession(ctx, submissionID, studentID, "submit_answer")
	if err != nil {
		return nil, err
	}

	if expired, err := s.expireIfNeeded(ctx, submission, exam); err != nil {
		return nil, err
	} else if expired {
		return nil, ErrInvalidSessionState
	}
	if submission.Status != models.SubmissionInProgress {
		return nil, ErrInvalidSessionState
	}

	item, err := s.guardServedItem(ctx, submission, exam, itemID)
	if err != nil {
		return nil, err
	}

	// Grading may take seconds (embedding/OCR round-trips); it runs before
	// the lock so concurrent session operations are not blocked behind it.
	result, err := s.gradeAnswer(ctx, item, payload, skipped)
	if err != nil {
		return nil, err
	}

	response, err := s.persistAnswer(ctx, submission.ID, exam, item, payload, result)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewSessionEvent(events.EventAnswerGraded, events.AnswerGradedEvent{
		SubmissionID: submission.ID,
		ItemID:       item.ID,
		StudentID:    studentID,
		Score:        result.Score,
		MaxPoints:    item.Points,
		Similarity:   result.Similarity,
		Flagged:      result.Flagged,
	}))

	if response.Completed {
		s.publishCompleted(ctx, submission.ID, exam.ID, studentID, *response.TotalScore, models.EndReasonCompleted)
	}

	return response, nil
}

// gradeAnswer invokes the grader and normalizes the empty-answer case into
// a zero-point result, per the state machine's contract.
func (s *sessionService) gradeAnswer(ctx context.Context, item *models.Item, payload *AnswerPayload, skipped bool) (*grading.Result, error) {
	if skipped {
		return &grading.Result{Score: 0, Feedback: grading.FeedbackSkipped}, nil
	}

	result, err := s.grader.Grade(ctx, item, payload.Text, payload.Image)
	if errors.Is(err, grading.ErrEmptyAnswer) {
		return &grading.Result{Score: 0, Feedback: grading.FeedbackNoAnswer}, nil
	}
	if err != nil {
		if errors.Is(err, grading.ErrUnavailable) {
			// Nothing was persisted; the client may retry the same call.
			return nil, err
		}
		return nil, fmt.Errorf("grading failed for item %d: %w", item.ID, err)
	}
	return result, nil
}

// ===== FINISH / TIMEOUT =====

func (s *sessionService) Finish(ctx context.Context, submissionID uint, studentID string) (*SessionResultResponse, error) {
	submission, exam, err := s.loadSession(ctx, submissionID, studentID, "finish")
	if err != nil {
		return nil, err
	}

	if submission.Status != models.SubmissionInProgress {
		return s.buildResult(ctx, submission)
	}

	result, err := s.forceComplete(ctx, submission.ID, exam, models.EndReasonFinished)
	if err != nil {
		return nil, err
	}

	s.publishCompleted(ctx, submission.ID, exam.ID, submission.StudentID, result.TotalScore, models.EndReasonFinished)
	return result, nil
}

func (s *sessionService) Timeout(ctx context.Context, submissionID uint) (*SessionResultResponse, error) {
	submission, err := s.repo.Submission().GetByID(ctx, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	// Terminal transitions are idempotent-safe: a timeout firing after
	// completion reports the existing result instead of failing.
	if submission.Status != models.SubmissionInProgress {
		return s.buildResult(ctx, submission)
	}

	exam, err := s.repo.Exam().GetByIDWithItems(ctx, submission.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	elapsed := s.clock.Now().Sub(submission.StartedAt)
	if elapsed < time.Duration(exam.DurationSeconds)*time.Second {
		return nil, ErrSessionNotExpired
	}

	result, err := s.forceComplete(ctx, submission.ID, exam, models.EndReasonTimeout)
	if err != nil {
		return nil, err
	}

	s.publishCompleted(ctx, submission.ID, exam.ID, submission.StudentID, result.TotalScore, models.EndReasonTimeout)
	return result, nil
}

// ===== PROCTORING =====

func (s *sessionService) RecordInfraction(ctx context.Context, submissionID uint) (*InfractionResponse, error) {
	submission, err := s.repo.Submission().GetByID(ctx, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	exam, err := s.repo.Exam().GetByIDWithItems(ctx, submission.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	txRepo, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			txRepo.(repositories.TransactionRepository).Rollback(ctx)
		}
	}()

	locked, err := txRepo.Submission().GetByIDForUpdate(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock submission: %w", err)
	}

	if locked.Status != models.SubmissionInProgress {
		txRepo.(repositories.TransactionRepository).Rollback(ctx)
		return &InfractionResponse{
			SubmissionID:    locked.ID,
			InfractionCount: locked.InfractionCount,
			Ceiling:         s.policy.InfractionCeiling,
			SessionEnded:    true,
		}, nil
	}

	locked.InfractionCount++
	locked.Version++

	// The ceiling is a hard cap: exam integrity wins over continuation.
	ended := exam.ProctoringEnabled && locked.InfractionCount >= s.policy.InfractionCeiling

	var totalScore float64
	if ended {
		totalScore, err = s.completeLocked(ctx, txRepo, locked, exam, models.EndReasonProctoring)
		if err != nil {
			return nil, err
		}
	} else {
		if err = txRepo.Submission().Update(ctx, locked); err != nil {
			return nil, fmt.Errorf("failed to update submission: %w", err)
		}
	}

	if err = txRepo.(repositories.TransactionRepository).Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.publish(ctx, events.NewSessionEvent(events.EventProctoringViolation, events.ProctoringViolationEvent{
		SubmissionID:    locked.ID,
		StudentID:       locked.StudentID,
		InfractionCount: locked.InfractionCount,
		Ceiling:         s.policy.InfractionCeiling,
		SessionEnded:    ended,
	}))
	if ended {
		s.publishCompleted(ctx, locked.ID, exam.ID, locked.StudentID, totalScore, models.EndReasonProctoring)
	}

	s.logger.Info("Proctoring infraction recorded",
		"submission_id", locked.ID,
		"infraction_count", locked.InfractionCount,
		"session_ended", ended)

	return &InfractionResponse{
		SubmissionID:    locked.ID,
		InfractionCount: locked.InfractionCount,
		Ceiling:         s.policy.InfractionCeiling,
		SessionEnded:    ended,
	}, nil
}

// ===== READ =====

func (s *sessionService) GetByIDWithDetails(ctx context.Context, submissionID uint, userID string) (*models.Submission, error) {
	submission, err := s.repo.Submission().GetByIDWithDetails(ctx, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	if submission.StudentID != userID {
		user, err := s.repo.User().GetByID(ctx, userID)
		if err != nil || user.Role == models.RoleStudent {
			return nil, NewPermissionError(userID, submissionID, "submission", "read", "not owner or insufficient permissions")
		}
	}

	return submission, nil
}
