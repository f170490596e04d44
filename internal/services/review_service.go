package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adaptix-edu/exam-service/internal/events"
	"github.com/adaptix-edu/exam-service/internal/models"
	"github.com/adaptix-edu/exam-service/internal/repositories"
	"github.com/adaptix-edu/exam-service/internal/utils"
)

// ReviewService lets a teacher override per-answer scores and remarks,
// then lock the submission into a final, immutable result. Finalization
// is one-way: there is no unfinalize.
type ReviewService interface {
	ApplyReview(ctx context.Context, submissionID uint, reviewerID string, req *ApplyReviewRequest) (*ReviewResponse, error)
	GetSubmissionForReview(ctx context.Context, submissionID uint, reviewerID string) (*models.Submission, error)
	GetAuditTrail(ctx context.Context, submissionID uint, reviewerID string) ([]*models.ReviewAuditLog, error)
}

type AnswerOverride struct {
	AnswerID uint    `json:"answer_id" validate:"required"`
	Score    float64 `json:"score"`
	Remarks  *string `json:"remarks" validate:"omitempty,max=2000"`
}

type ApplyReviewRequest struct {
	Remarks   *string          `json:"remarks" validate:"omitempty,max=2000"`
	Overrides []AnswerOverride `json:"overrides" validate:"dive"`
	Finalize  bool             `json:"finalize"`
}

type ReviewResponse struct {
	SubmissionID uint                    `json:"submission_id"`
	TotalScore   float64                 `json:"total_score"`
	Status       models.SubmissionStatus `json:"status"`
	IsFinalized  bool                    `json:"is_finalized"`
	Passed       bool                    `json:"passed"`
}

type reviewService struct {
	repo      repositories.TransactionRepository
	validator *utils.Validator
	publisher events.EventPublisher
	clock     Clock
	logger    *slog.Logger
}

func NewReviewService(
	repo repositories.TransactionRepository,
	validator *utils.Validator,
	publisher events.EventPublisher,
	clock Clock,
	logger *slog.Logger,
) ReviewService {
	return &reviewService{
		repo:      repo,
		validator: validator,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

func (s *reviewService) ApplyReview(ctx context.Context, submissionID uint, reviewerID string, req *ApplyReviewRequest) (*ReviewResponse, error) {
	s.logger.Info("Applying review",
		"submission_id", submissionID,
		"reviewer_id", reviewerID,
		"overrides", len(req.Overrides),
		"finalize", req.Finalize)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.checkReviewer(ctx, reviewerID); err != nil {
		return nil, err
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

	submission, err := txRepo.Submission().GetByIDForUpdate(ctx, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			err = ErrSubmissionNotFound
		}
		return nil, err
	}
	if submission.IsFinalized {
		err = ErrSubmissionFinalized
		return nil, err
	}

	answers, err := txRepo.Answer().GetBySubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	byID := make(map[uint]*models.Answer, len(answers))
	for _, a := range answers {
		byID[a.ID] = a
	}

	// Validate every override before writing anything.
	for _, override := range req.Overrides {
		answer, ok := byID[override.AnswerID]
		if !ok {
			s.logger.Error("review override references answer outside the submission",
				"submission_id", submissionID,
				"answer_id", override.AnswerID)
			err = ErrItemNotInExam
			return nil, err
		}
		if answer.Item == nil {
			err = fmt.Errorf("answer %d has no item loaded: %w", answer.ID, ErrInternalError)
			return nil, err
		}
		if override.Score < 0 || override.Score > float64(answer.Item.Points) {
			err = fmt.Errorf("%w: answer %d score %.2f (max %d)",
				ErrScoreOutOfRange, override.AnswerID, override.Score, answer.Item.Points)
			return nil, err
		}
	}

	now := s.clock.Now()
	for _, override := range req.Overrides {
		answer := byID[override.AnswerID]
		previous := answer.CurrentScore

		answer.CurrentScore = override.Score
		if override.Remarks != nil {
			answer.TeacherRemarks = override.Remarks
		}
		if err = txRepo.Answer().Update(ctx, answer); err != nil {
			return nil, fmt.Errorf("failed to update answer %d: %w", answer.ID, err)
		}

		answerID := answer.ID
		audit := &models.ReviewAuditLog{
			SubmissionID:  submissionID,
			AnswerID:      &answerID,
			ReviewerID:    reviewerID,
			PreviousScore: previous,
			NewScore:      override.Score,
			Remarks:       override.Remarks,
			Finalized:     req.Finalize,
		}
		if err = txRepo.Audit().Create(ctx, audit); err != nil {
			return nil, fmt.Errorf("failed to write audit entry: %w", err)
		}
	}

	// Unlisted answers keep their existing values; the total is always
	// recomputed from the full answer set.
	var total float64
	for _, a := range answers {
		total += a.CurrentScore
	}

	submission.TotalScore = total
	if req.Remarks != nil {
		submission.TeacherRemarks = req.Remarks
	}
	if req.Finalize {
		submission.IsFinalized = true
		submission.Status = models.SubmissionFinalized
		submission.FinalizedAt = &now
	}
	submission.Version++

	if err = txRepo.Submission().Update(ctx, submission); err != nil {
		return nil, fmt.Errorf("failed to update submission: %w", err)
	}

	if err = txRepo.(repositories.TransactionRepository).Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	passed := s.passed(ctx, submission, total)

	if req.Finalize {
		s.publishFinalized(ctx, submission, reviewerID, total, passed)
	}

	s.logger.Info("Review applied",
		"submission_id", submissionID,
		"total_score", total,
		"finalized", req.Finalize)

	return &ReviewResponse{
		SubmissionID: submission.ID,
		TotalScore:   total,
		Status:       submission.Status,
		IsFinalized:  submission.IsFinalized,
		Passed:       passed,
	}, nil
}

func (s *reviewService) GetSubmissionForReview(ctx context.Context, submissionID uint, reviewerID string) (*models.Submission, error) {
	if err := s.checkReviewer(ctx, reviewerID); err != nil {
		return nil, err
	}

	submission, err := s.repo.Submission().GetByIDWithDetails(ctx, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return submission, nil
}

func (s *reviewService) GetAuditTrail(ctx context.Context, submissionID uint, reviewerID string) ([]*models.ReviewAuditLog, error) {
	if err := s.checkReviewer(ctx, reviewerID); err != nil {
		return nil, err
	}
	return s.repo.Audit().GetBySubmission(ctx, submissionID)
}

func (s *reviewService) checkReviewer(ctx context.Context, reviewerID string) error {
	user, err := s.repo.User().GetByID(ctx, reviewerID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return NewPermissionError(reviewerID, 0, "submission", "review", "reviewer not found")
		}
		return fmt.Errorf("failed to get reviewer: %w", err)
	}
	if user.Role != models.RoleTeacher && user.Role != models.RoleAdmin {
		return NewPermissionError(reviewerID, 0, "submission", "review", "requires teacher or admin role")
	}
	return nil
}

func (s *reviewService) passed(ctx context.Context, submission *models.Submission, total float64) bool {
	exam, err := s.repo.Exam().GetByID(ctx, submission.ExamID)
	if err != nil || exam.TotalPoints <= 0 {
		return false
	}
	return total/float64(exam.TotalPoints) >= exam.PassingRatio
}

func (s *reviewService) publishFinalized(ctx context.Context, submission *models.Submission, reviewerID string, total float64, passed bool) {
	if s.publisher == nil {
		return
	}
	event := events.NewSessionEvent(events.EventSubmissionFinalized, events.SubmissionFinalizedEvent{
		SubmissionID: submission.ID,
		ExamID:       submission.ExamID,
		StudentID:    submission.StudentID,
		ReviewerID:   reviewerID,
		TotalScore:   total,
		Passed:       passed,
	})
	if err := s.publisher.PublishSessionEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish finalized event", "submission_id", submission.ID, "error", err)
	}
}
