package services

import (
	"context"
	"fmt"
	"time"

	"github.com/adaptix-edu/exam-service/internal/events"
	"github.com/adaptix-edu/exam-service/internal/grading"
	"github.com/adaptix-edu/exam-service/internal/models"
	"github.com/adaptix-edu/exam-service/internal/repositories"
)

// loadSession fetches the submission and its exam with items, checking
// ownership on the way.
func (s *sessionService) loadSession(ctx context.Context, submissionID uint, studentID, action string) (*models.Submission, *models.ExamDefinition, error) {
	submission, err := s.repo.Submission().GetByID(ctx, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrSubmissionNotFound
		}
		return nil, nil, fmt.Errorf("failed to get submission: %w", err)
	}

	if submission.StudentID != studentID {
		return nil, nil, NewPermissionError(studentID, submissionID, "submission", action, "not owned by student")
	}

	exam, err := s.repo.Exam().GetByIDWithItems(ctx, submission.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get exam: %w", err)
	}

	return submission, exam, nil
}

// expireIfNeeded forces the timeout path when the submission has exceeded
// its duration. Returns true when the session was (or already is) expired.
func (s *sessionService) expireIfNeeded(ctx context.Context, submission *models.Submission, exam *models.ExamDefinition) (bool, error) {
	if submission.Status != models.SubmissionInProgress {
		return false, nil
	}
	elapsed := s.clock.Now().Sub(submission.StartedAt)
	if elapsed < time.Duration(exam.DurationSeconds)*time.Second {
		return false, nil
	}

	result, err := s.forceComplete(ctx, submission.ID, exam, models.EndReasonTimeout)
	if err != nil {
		return false, err
	}
	s.publishCompleted(ctx, submission.ID, exam.ID, submission.StudentID, result.TotalScore, models.EndReasonTimeout)
	return true, nil
}

// guardServedItem verifies the item belongs to the exam, was served to the
// submission, and is not answered yet. An item outside the exam is an
// integrity violation, not a client mistake.
func (s *sessionService) guardServedItem(ctx context.Context, submission *models.Submission, exam *models.ExamDefinition, itemID uint) (*models.Item, error) {
	var item *models.Item
	for i := range exam.Items {
		if exam.Items[i].ID == itemID {
			item = &exam.Items[i]
			break
		}
	}
	if item == nil {
		s.logger.Error("answer references item outside the submission's exam",
			"submission_id", submission.ID,
			"exam_id", exam.ID,
			"item_id", itemID)
		return nil, ErrItemNotInExam
	}

	servedIDs, err := s.repo.Submission().GetServedItemIDs(ctx, submission.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get served items: %w", err)
	}
	served := false
	for _, id := range servedIDs {
		if id == itemID {
			served = true
			break
		}
	}
	if !served {
		return nil, ErrItemNotServed
	}

	answered, err := s.repo.Answer().HasAnswer(ctx, submission.ID, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing answer: %w", err)
	}
	if answered {
		return nil, ErrItemAlreadyAnswered
	}

	return item, nil
}

// persistAnswer runs the locked write: record the answer, fold the score
// into the ability estimate, select the next item or complete the session.
func (s *sessionService) persistAnswer(ctx context.Context, submissionID uint, exam *models.ExamDefinition, item *models.Item, payload *AnswerPayload, result *grading.Result) (*SubmitAnswerResponse, error) {
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

	// Re-check under the lock: a concurrent submit, timeout or infraction
	// may have transitioned the session while grading ran.
	if locked.Status != models.SubmissionInProgress {
		err = ErrInvalidSessionState
		return nil, err
	}
	answered, err := txRepo.Answer().HasAnswer(ctx, submissionID, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing answer: %w", err)
	}
	if answered {
		err = ErrItemAlreadyAnswered
		return nil, err
	}

	now := s.clock.Now()
	answer := &models.Answer{
		SubmissionID:         submissionID,
		ItemID:               item.ID,
		RawInput:             payload.Text,
		ImagePath:            payload.ImagePath,
		AIScore:              result.Score,
		CurrentScore:         result.Score,
		Similarity:           result.Similarity,
		FeedbackText:         result.Feedback,
		FlaggedForPlagiarism: result.Flagged,
		AnsweredAt:           now,
	}
	if result.ExtractedText != "" {
		answer.ExtractedText = &result.ExtractedText
	}
	if err = txRepo.Answer().Create(ctx, answer); err != nil {
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	engine := s.engineFor(exam)
	scoreRatio := result.Score / float64(max(item.Points, 1))
	locked.AbilityEstimate = engine.Update(locked.AbilityEstimate, item.Difficulty, scoreRatio)
	locked.Version++

	servedIDs, err := txRepo.Submission().GetServedItemIDs(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get served items: %w", err)
	}
	servedSet := make(map[uint]bool, len(servedIDs))
	for _, id := range servedIDs {
		servedSet[id] = true
	}

	response := &SubmitAnswerResponse{
		ItemID:     item.ID,
		Score:      result.Score,
		MaxPoints:  item.Points,
		Feedback:   result.Feedback,
		Similarity: result.Similarity,
		Flagged:    result.Flagged,
	}

	next := engine.SelectNext(itemPool(exam), servedSet, locked.AbilityEstimate)
	if next != nil {
		if err = txRepo.Submission().RecordServed(ctx, &models.ServedItem{
			SubmissionID: submissionID,
			ItemID:       next.ID,
			ServedAt:     now,
		}); err != nil {
			return nil, fmt.Errorf("failed to record served item: %w", err)
		}
		if err = txRepo.Submission().Update(ctx, locked); err != nil {
			return nil, fmt.Errorf("failed to update submission: %w", err)
		}
		response.NextItem = buildItemView(next)
	} else {
		var total float64
		total, err = s.completeLocked(ctx, txRepo, locked, exam, models.EndReasonCompleted)
		if err != nil {
			return nil, err
		}
		response.Completed = true
		response.TotalScore = &total
	}

	if err = txRepo.(repositories.TransactionRepository).Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return response, nil
}

// forceComplete transitions an in-progress submission to completed inside
// its own locked transaction, zero-scoring served-but-unanswered items.
func (s *sessionService) forceComplete(ctx context.Context, submissionID uint, exam *models.ExamDefinition, endReason string) (*SessionResultResponse, error) {
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
		// Lost the race to another terminal transition; report what stands.
		txRepo.(repositories.TransactionRepository).Rollback(ctx)
		return s.buildResult(ctx, locked)
	}

	total, err := s.completeLocked(ctx, txRepo, locked, exam, endReason)
	if err != nil {
		return nil, err
	}

	if err = txRepo.(repositories.TransactionRepository).Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	answers, err := s.repo.Answer().GetBySubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}

	return &SessionResultResponse{
		SubmissionID:  locked.ID,
		Status:        locked.Status,
		TotalScore:    total,
		AnsweredCount: len(answers),
		EndReason:     endReason,
	}, nil
}

// completeLocked finishes a submission already held under the row lock:
// zero-scores served-but-unanswered items, aggregates the provisional
// total and writes the completed state. Returns the total score.
func (s *sessionService) completeLocked(ctx context.Context, txRepo repositories.Repository, locked *models.Submission, exam *models.ExamDefinition, endReason string) (float64, error) {
	servedIDs, err := txRepo.Submission().GetServedItemIDs(ctx, locked.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to get served items: %w", err)
	}
	answeredIDs, err := txRepo.Answer().GetAnsweredItemIDs(ctx, locked.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to get answered items: %w", err)
	}
	answeredSet := make(map[uint]bool, len(answeredIDs))
	for _, id := range answeredIDs {
		answeredSet[id] = true
	}

	now := s.clock.Now()
	for _, itemID := range servedIDs {
		if answeredSet[itemID] {
			continue
		}
		zero := &models.Answer{
			SubmissionID: locked.ID,
			ItemID:       itemID,
			FeedbackText: grading.FeedbackNoAnswer,
			AnsweredAt:   now,
		}
		if err := txRepo.Answer().Create(ctx, zero); err != nil {
			return 0, fmt.Errorf("failed to zero-score item %d: %w", itemID, err)
		}
	}

	answers, err := txRepo.Answer().GetBySubmission(ctx, locked.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load answers: %w", err)
	}
	var total float64
	for _, a := range answers {
		total += a.CurrentScore
	}

	reason := endReason
	locked.Status = models.SubmissionCompleted
	locked.TotalScore = total
	locked.CompletedAt = &now
	locked.EndReason = &reason
	locked.Version++

	if err := txRepo.Submission().Update(ctx, locked); err != nil {
		return 0, fmt.Errorf("failed to update submission: %w", err)
	}

	s.logger.Info("Exam session completed",
		"submission_id", locked.ID,
		"exam_id", exam.ID,
		"total_score", total,
		"end_reason", endReason)

	return total, nil
}

// buildResult summarizes a terminal submission.
func (s *sessionService) buildResult(ctx context.Context, submission *models.Submission) (*SessionResultResponse, error) {
	answers, err := s.repo.Answer().GetBySubmission(ctx, submission.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	endReason := ""
	if submission.EndReason != nil {
		endReason = *submission.EndReason
	}
	return &SessionResultResponse{
		SubmissionID:  submission.ID,
		Status:        submission.Status,
		TotalScore:    submission.TotalScore,
		AnsweredCount: len(answers),
		EndReason:     endReason,
	}, nil
}

// publish sends a session event; publishing is best-effort and never
// fails the student-facing operation.
func (s *sessionService) publish(ctx context.Context, event *events.SessionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSessionEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish session event", "event_type", event.Type, "error", err)
	}
}

func (s *sessionService) publishCompleted(ctx context.Context, submissionID, examID uint, studentID string, total float64, endReason string) {
	answeredIDs, err := s.repo.Answer().GetAnsweredItemIDs(ctx, submissionID)
	if err != nil {
		s.logger.Warn("failed to count answered items for completed event",
			"submission_id", submissionID, "error", err)
		answeredIDs = nil
	}
	s.publish(ctx, events.NewSessionEvent(events.EventSessionCompleted, events.SessionCompletedEvent{
		SubmissionID:  submissionID,
		ExamID:        examID,
		StudentID:     studentID,
		TotalScore:    total,
		AnsweredCount: len(answeredIDs),
		EndReason:     endReason,
	}))
}

func itemPool(exam *models.ExamDefinition) []*models.Item {
	pool := make([]*models.Item, len(exam.Items))
	for i := range exam.Items {
		pool[i] = &exam.Items[i]
	}
	return pool
}

func buildItemView(item *models.Item) *ItemView {
	view := &ItemView{
		ID:           item.ID,
		QuestionText: item.QuestionText,
		Kind:         item.Kind,
		Points:       item.Points,
	}
	if item.Kind == models.ItemMultipleChoice {
		if opts, err := item.ChoiceOptions(); err == nil {
			view.Options = opts
		}
	}
	return view
}
