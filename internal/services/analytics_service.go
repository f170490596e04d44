package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/adaptix-edu/exam-service/internal/models"
	"github.com/adaptix-edu/exam-service/internal/repositories"
)

// AnalyticsService aggregates performance reporting over completed and
// finalized submissions. In-progress attempts are never counted.
type AnalyticsService interface {
	GetStudentPerformance(ctx context.Context, studentID, requesterID string) (*StudentPerformance, error)
	GetExamStatistics(ctx context.Context, examID uint, requesterID string) (*ExamStatistics, error)
}

type StudentPerformance struct {
	StudentID    string           `json:"student_id"`
	TotalExams   int              `json:"total_exams"`
	AverageScore float64          `json:"average_score"` // percentage
	BestScore    float64          `json:"best_score"`
	WorstScore   float64          `json:"worst_score"`
	Trend        string           `json:"trend"` // improving, declining, stable
	History      []AttemptSummary `json:"history"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

type AttemptSummary struct {
	SubmissionID uint       `json:"submission_id"`
	ExamID       uint       `json:"exam_id"`
	ExamTitle    string     `json:"exam_title"`
	TotalScore   float64    `json:"total_score"`
	Percentage   float64    `json:"percentage"`
	Passed       bool       `json:"passed"`
	EndReason    string     `json:"end_reason"`
	CompletedAt  *time.Time `json:"completed_at"`
}

type ExamStatistics struct {
	ExamID             uint      `json:"exam_id"`
	Title              string    `json:"title"`
	TotalAttempts      int       `json:"total_attempts"`
	CompletedAttempts  int       `json:"completed_attempts"`
	InProgressAttempts int       `json:"in_progress_attempts"`
	AverageScore       float64   `json:"average_score"` // percentage
	MedianScore        float64   `json:"median_score"`
	HighestScore       float64   `json:"highest_score"`
	LowestScore        float64   `json:"lowest_score"`
	PassRate           float64   `json:"pass_rate"` // 0.0 - 1.0
	PassedCount        int       `json:"passed_count"`
	FailedCount        int       `json:"failed_count"`
	GeneratedAt        time.Time `json:"generated_at"`
}

type analyticsService struct {
	repo   repositories.TransactionRepository
	clock  Clock
	logger *slog.Logger
}

func NewAnalyticsService(repo repositories.TransactionRepository, clock Clock, logger *slog.Logger) AnalyticsService {
	return &analyticsService{
		repo:   repo,
		clock:  clock,
		logger: logger,
	}
}

// GetStudentPerformance returns a student's result history across exams.
// Students may view their own performance; teachers and admins may view
// any student's.
func (s *analyticsService) GetStudentPerformance(ctx context.Context, studentID, requesterID string) (*StudentPerformance, error) {
	if err := s.checkStudentAccess(ctx, studentID, requesterID); err != nil {
		return nil, err
	}

	submissions, _, err := s.repo.Submission().List(ctx, repositories.SubmissionFilters{
		StudentID: &studentID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	perf := &StudentPerformance{
		StudentID:   studentID,
		Trend:       "stable",
		History:     []AttemptSummary{},
		GeneratedAt: s.clock.Now(),
	}

	examTitles := make(map[uint]string)
	examTotals := make(map[uint]int)
	examRatios := make(map[uint]float64)
	var percentages []float64

	for _, sub := range submissions {
		if sub.Status == models.SubmissionInProgress {
			continue
		}

		if _, ok := examTitles[sub.ExamID]; !ok {
			exam, err := s.repo.Exam().GetByID(ctx, sub.ExamID)
			if err != nil {
				s.logger.Error("Failed to load exam for history entry",
					"exam_id", sub.ExamID, "submission_id", sub.ID, "error", err)
				examTitles[sub.ExamID] = ""
				examTotals[sub.ExamID] = 0
				examRatios[sub.ExamID] = 0
			} else {
				examTitles[sub.ExamID] = exam.Title
				examTotals[sub.ExamID] = exam.TotalPoints
				examRatios[sub.ExamID] = exam.PassingRatio
			}
		}

		percentage := 0.0
		passed := false
		if total := examTotals[sub.ExamID]; total > 0 {
			ratio := sub.TotalScore / float64(total)
			percentage = ratio * 100
			passed = ratio >= examRatios[sub.ExamID]
		}

		perf.History = append(perf.History, AttemptSummary{
			SubmissionID: sub.ID,
			ExamID:       sub.ExamID,
			ExamTitle:    examTitles[sub.ExamID],
			TotalScore:   sub.TotalScore,
			Percentage:   percentage,
			Passed:       passed,
			EndReason:    endReasonLabel(sub.EndReason),
			CompletedAt:  sub.CompletedAt,
		})
		percentages = append(percentages, percentage)
	}

	perf.TotalExams = len(percentages)
	if len(percentages) == 0 {
		return perf, nil
	}

	best, worst, sum := percentages[0], percentages[0], 0.0
	for _, p := range percentages {
		if p > best {
			best = p
		}
		if p < worst {
			worst = p
		}
		sum += p
	}
	perf.AverageScore = sum / float64(len(percentages))
	perf.BestScore = best
	perf.WorstScore = worst
	perf.Trend = scoreTrend(percentages)

	return perf, nil
}

// GetExamStatistics reports aggregate results for an exam: attempt
// counts, score spread and pass rate over terminal submissions. Only
// the exam owner or an admin may read it.
func (s *analyticsService) GetExamStatistics(ctx context.Context, examID uint, requesterID string) (*ExamStatistics, error) {
	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	user, err := s.repo.User().GetByID(ctx, requesterID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewPermissionError(requesterID, examID, "exam", "view_statistics", "user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role != models.RoleAdmin && exam.CreatedBy != requesterID {
		return nil, NewPermissionError(requesterID, examID, "exam", "view_statistics", "not the exam owner")
	}

	submissions, _, err := s.repo.Submission().GetByExam(ctx, examID, repositories.SubmissionFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to get submissions: %w", err)
	}

	stats := &ExamStatistics{
		ExamID:        examID,
		Title:         exam.Title,
		TotalAttempts: len(submissions),
		GeneratedAt:   s.clock.Now(),
	}

	var percentages []float64
	for _, sub := range submissions {
		if sub.Status == models.SubmissionInProgress {
			stats.InProgressAttempts++
			continue
		}
		stats.CompletedAttempts++

		percentage := 0.0
		if exam.TotalPoints > 0 {
			ratio := sub.TotalScore / float64(exam.TotalPoints)
			percentage = ratio * 100
			if ratio >= exam.PassingRatio {
				stats.PassedCount++
			} else {
				stats.FailedCount++
			}
		} else {
			stats.FailedCount++
		}
		percentages = append(percentages, percentage)
	}

	if len(percentages) == 0 {
		return stats, nil
	}

	sort.Float64s(percentages)
	stats.LowestScore = percentages[0]
	stats.HighestScore = percentages[len(percentages)-1]
	stats.MedianScore = medianOf(percentages)

	sum := 0.0
	for _, p := range percentages {
		sum += p
	}
	stats.AverageScore = sum / float64(len(percentages))
	stats.PassRate = float64(stats.PassedCount) / float64(len(percentages))

	return stats, nil
}

func (s *analyticsService) checkStudentAccess(ctx context.Context, studentID, requesterID string) error {
	if studentID == requesterID {
		return nil
	}
	user, err := s.repo.User().GetByID(ctx, requesterID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return NewPermissionError(requesterID, 0, "student_performance", "view", "user not found")
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role != models.RoleTeacher && user.Role != models.RoleAdmin {
		return NewPermissionError(requesterID, 0, "student_performance", "view", "requires teacher or admin role")
	}
	return nil
}

// scoreTrend compares the most recent result against the mean of the
// earlier ones. History arrives newest-first from the repository.
func scoreTrend(percentages []float64) string {
	if len(percentages) < 2 {
		return "stable"
	}
	latest := percentages[0]
	sum := 0.0
	for _, p := range percentages[1:] {
		sum += p
	}
	mean := sum / float64(len(percentages)-1)

	switch {
	case latest > mean+1e-9:
		return "improving"
	case latest < mean-1e-9:
		return "declining"
	default:
		return "stable"
	}
}

// medianOf expects a sorted slice.
func medianOf(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
