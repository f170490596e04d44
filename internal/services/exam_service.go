package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adaptix-edu/exam-service/internal/cache"
	apperrors "github.com/adaptix-edu/exam-service/internal/errors"
	"github.com/adaptix-edu/exam-service/internal/models"
	"github.com/adaptix-edu/exam-service/internal/repositories"
	"github.com/adaptix-edu/exam-service/internal/utils"
)

const (
	examCacheTTL      = 10 * time.Minute
	examCacheKeyFmt   = "exam:%d"
	examItemsCacheFmt = "exam:%d:items"
)

// ExamService owns exam authoring and the item bank. Exams are editable
// while no submission references them; once a student has started an
// attempt the definition is frozen except for status transitions.
type ExamService interface {
	CreateExam(ctx context.Context, creatorID string, req *CreateExamRequest) (*models.ExamDefinition, error)
	GetExam(ctx context.Context, examID uint) (*models.ExamDefinition, error)
	GetExamWithItems(ctx context.Context, examID uint) (*models.ExamDefinition, error)
	UpdateExam(ctx context.Context, examID uint, userID string, req *UpdateExamRequest) (*models.ExamDefinition, error)
	DeleteExam(ctx context.Context, examID uint, userID string) error
	ListExams(ctx context.Context, filters repositories.ExamFilters) ([]*models.ExamDefinition, int64, error)

	ActivateExam(ctx context.Context, examID uint, userID string) error
	ArchiveExam(ctx context.Context, examID uint, userID string) error

	AddItems(ctx context.Context, examID uint, userID string, req *AddItemsRequest) ([]*models.Item, error)
	DeleteItem(ctx context.Context, examID, itemID uint, userID string) error
}

type ItemRequest struct {
	QuestionText    string                `json:"question_text" validate:"required,min=1"`
	Kind            models.ItemKind       `json:"kind" validate:"required,item_kind"`
	Difficulty      float64               `json:"difficulty" validate:"min=0,max=1"`
	Points          int                   `json:"points" validate:"required,min=1"`
	Position        int                   `json:"position" validate:"min=0"`
	Options         []models.ChoiceOption `json:"options,omitempty" validate:"omitempty,dive"`
	CorrectChoice   *string               `json:"correct_choice,omitempty" validate:"omitempty,min=1,max=10"`
	ReferenceAnswer *string               `json:"reference_answer,omitempty" validate:"omitempty,min=1"`
}

type CreateExamRequest struct {
	Title             string        `json:"title" validate:"required,min=1,max=200"`
	Description       *string       `json:"description" validate:"omitempty,max=1000"`
	DurationSeconds   int           `json:"duration_seconds" validate:"required,min=60,max=18000"`
	PassingRatio      float64       `json:"passing_ratio" validate:"min=0,max=1"`
	AdaptiveEnabled   *bool         `json:"adaptive_enabled"`
	ProctoringEnabled *bool         `json:"proctoring_enabled"`
	Items             []ItemRequest `json:"items" validate:"omitempty,dive"`
}

type UpdateExamRequest struct {
	Title           *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Description     *string  `json:"description" validate:"omitempty,max=1000"`
	DurationSeconds *int     `json:"duration_seconds" validate:"omitempty,min=60,max=18000"`
	PassingRatio    *float64 `json:"passing_ratio" validate:"omitempty,min=0,max=1"`
	AdaptiveEnabled *bool    `json:"adaptive_enabled"`
}

type AddItemsRequest struct {
	Items []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

type examService struct {
	repo      repositories.TransactionRepository
	cache     cache.CacheService
	validator *utils.Validator
	logger    *slog.Logger
}

func NewExamService(
	repo repositories.TransactionRepository,
	cacheService cache.CacheService,
	validator *utils.Validator,
	logger *slog.Logger,
) ExamService {
	return &examService{
		repo:      repo,
		cache:     cacheService,
		validator: validator,
		logger:    logger,
	}
}

func (s *examService) CreateExam(ctx context.Context, creatorID string, req *CreateExamRequest) (*models.ExamDefinition, error) {
	s.logger.Info("Creating exam", "title", req.Title, "creator_id", creatorID, "items", len(req.Items))

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.checkAuthor(ctx, creatorID); err != nil {
		return nil, err
	}

	items, totalPoints, err := s.buildItems(req.Items, creatorID)
	if err != nil {
		return nil, err
	}

	exam := &models.ExamDefinition{
		Title:             req.Title,
		Description:       req.Description,
		Status:            models.ExamDraft,
		DurationSeconds:   req.DurationSeconds,
		TotalPoints:       totalPoints,
		PassingRatio:      req.PassingRatio,
		AdaptiveEnabled:   true,
		ProctoringEnabled: false,
		CreatedBy:         creatorID,
	}
	if req.AdaptiveEnabled != nil {
		exam.AdaptiveEnabled = *req.AdaptiveEnabled
	}
	if req.ProctoringEnabled != nil {
		exam.ProctoringEnabled = *req.ProctoringEnabled
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

	if err = txRepo.Exam().Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("failed to create exam: %w", err)
	}
	if len(items) > 0 {
		for _, item := range items {
			item.ExamID = exam.ID
		}
		if err = txRepo.Item().CreateBatch(ctx, items); err != nil {
			return nil, fmt.Errorf("failed to create items: %w", err)
		}
	}
	if err = txRepo.(repositories.TransactionRepository).Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Exam created", "exam_id", exam.ID, "total_points", totalPoints)
	return exam, nil
}

func (s *examService) GetExam(ctx context.Context, examID uint) (*models.ExamDefinition, error) {
	cacheKey := fmt.Sprintf(examCacheKeyFmt, examID)
	var cached models.ExamDefinition
	if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("exam cache read failed", "exam_id", examID, "error", err)
	}

	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if err := s.cache.Set(ctx, cacheKey, exam, examCacheTTL); err != nil {
		s.logger.Warn("exam cache write failed", "exam_id", examID, "error", err)
	}
	return exam, nil
}

func (s *examService) GetExamWithItems(ctx context.Context, examID uint) (*models.ExamDefinition, error) {
	cacheKey := fmt.Sprintf(examItemsCacheFmt, examID)
	var cached models.ExamDefinition
	if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("exam cache read failed", "exam_id", examID, "error", err)
	}

	exam, err := s.repo.Exam().GetByIDWithItems(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if err := s.cache.Set(ctx, cacheKey, exam, examCacheTTL); err != nil {
		s.logger.Warn("exam cache write failed", "exam_id", examID, "error", err)
	}
	return exam, nil
}

func (s *examService) UpdateExam(ctx context.Context, examID uint, userID string, req *UpdateExamRequest) (*models.ExamDefinition, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	exam, err := s.editableExam(ctx, examID, userID, "update")
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		exam.Title = *req.Title
	}
	if req.Description != nil {
		exam.Description = req.Description
	}
	if req.DurationSeconds != nil {
		exam.DurationSeconds = *req.DurationSeconds
	}
	if req.PassingRatio != nil {
		exam.PassingRatio = *req.PassingRatio
	}
	if req.AdaptiveEnabled != nil {
		exam.AdaptiveEnabled = *req.AdaptiveEnabled
	}

	if err := s.repo.Exam().Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("failed to update exam: %w", err)
	}
	s.invalidate(ctx, examID)

	s.logger.Info("Exam updated", "exam_id", examID, "user_id", userID)
	return exam, nil
}

func (s *examService) DeleteExam(ctx context.Context, examID uint, userID string) error {
	if _, err := s.editableExam(ctx, examID, userID, "delete"); err != nil {
		return err
	}

	if err := s.repo.Exam().Delete(ctx, examID); err != nil {
		return fmt.Errorf("failed to delete exam: %w", err)
	}
	s.invalidate(ctx, examID)

	s.logger.Info("Exam deleted", "exam_id", examID, "user_id", userID)
	return nil
}

func (s *examService) ListExams(ctx context.Context, filters repositories.ExamFilters) ([]*models.ExamDefinition, int64, error) {
	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 20
	}
	return s.repo.Exam().List(ctx, filters)
}

func (s *examService) ActivateExam(ctx context.Context, examID uint, userID string) error {
	exam, err := s.ownedExam(ctx, examID, userID, "activate")
	if err != nil {
		return err
	}
	if exam.Status == models.ExamActive {
		return nil
	}

	items, err := s.repo.Item().GetByExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("failed to load items: %w", err)
	}
	if len(items) == 0 {
		return ErrExamHasNoItems
	}

	if err := s.repo.Exam().UpdateStatus(ctx, examID, models.ExamActive); err != nil {
		return fmt.Errorf("failed to activate exam: %w", err)
	}
	s.invalidate(ctx, examID)

	s.logger.Info("Exam activated", "exam_id", examID, "user_id", userID)
	return nil
}

func (s *examService) ArchiveExam(ctx context.Context, examID uint, userID string) error {
	if _, err := s.ownedExam(ctx, examID, userID, "archive"); err != nil {
		return err
	}

	if err := s.repo.Exam().UpdateStatus(ctx, examID, models.ExamArchived); err != nil {
		return fmt.Errorf("failed to archive exam: %w", err)
	}
	s.invalidate(ctx, examID)

	s.logger.Info("Exam archived", "exam_id", examID, "user_id", userID)
	return nil
}

func (s *examService) AddItems(ctx context.Context, examID uint, userID string, req *AddItemsRequest) ([]*models.Item, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	exam, err := s.editableExam(ctx, examID, userID, "add items")
	if err != nil {
		return nil, err
	}

	items, addedPoints, err := s.buildItems(req.Items, userID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		item.ExamID = examID
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

	if err = txRepo.Item().CreateBatch(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to create items: %w", err)
	}
	exam.TotalPoints += addedPoints
	if err = txRepo.Exam().Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("failed to update exam total: %w", err)
	}
	if err = txRepo.(repositories.TransactionRepository).Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.invalidate(ctx, examID)
	s.logger.Info("Items added", "exam_id", examID, "count", len(items))
	return items, nil
}

func (s *examService) DeleteItem(ctx context.Context, examID, itemID uint, userID string) error {
	exam, err := s.editableExam(ctx, examID, userID, "delete item")
	if err != nil {
		return err
	}

	item, err := s.repo.Item().GetByID(ctx, itemID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrItemNotFound
		}
		return fmt.Errorf("failed to get item: %w", err)
	}
	if item.ExamID != examID {
		return ErrItemNotFound
	}

	txRepo, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			txRepo.(repositories.TransactionRepository).Rollback(ctx)
		}
	}()

	if err = txRepo.Item().Delete(ctx, itemID); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	exam.TotalPoints -= item.Points
	if exam.TotalPoints < 0 {
		exam.TotalPoints = 0
	}
	if err = txRepo.Exam().Update(ctx, exam); err != nil {
		return fmt.Errorf("failed to update exam total: %w", err)
	}
	if err = txRepo.(repositories.TransactionRepository).Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.invalidate(ctx, examID)
	s.logger.Info("Item deleted", "exam_id", examID, "item_id", itemID)
	return nil
}

// buildItems validates item requests and converts them into models,
// returning the summed point value.
func (s *examService) buildItems(reqs []ItemRequest, creatorID string) ([]*models.Item, int, error) {
	items := make([]*models.Item, 0, len(reqs))
	var total int

	for i, req := range reqs {
		item := &models.Item{
			QuestionText:    req.QuestionText,
			Kind:            req.Kind,
			Difficulty:      req.Difficulty,
			Points:          req.Points,
			Position:        req.Position,
			CorrectChoice:   req.CorrectChoice,
			ReferenceAnswer: req.ReferenceAnswer,
			CreatedBy:       creatorID,
		}
		if item.Position == 0 {
			item.Position = i + 1
		}

		switch req.Kind {
		case models.ItemMultipleChoice:
			if len(req.Options) == 0 || req.CorrectChoice == nil {
				return nil, 0, apperrors.ValidationErrors{
					*apperrors.NewValidationError("options", "multiple-choice items require options and a correct choice", nil),
				}
			}
			if err := item.SetChoiceOptions(req.Options); err != nil {
				return nil, 0, err
			}
			if errs := utils.ValidateChoiceOptions(json.RawMessage(item.Options), req.CorrectChoice); len(errs) > 0 {
				return nil, 0, errs
			}
		case models.ItemFreeText:
			if req.ReferenceAnswer == nil || *req.ReferenceAnswer == "" {
				return nil, 0, apperrors.ValidationErrors{
					*apperrors.NewValidationError("reference_answer", "free-text items require a reference answer", nil),
				}
			}
			item.Options = nil
			item.CorrectChoice = nil
		}

		items = append(items, item)
		total += req.Points
	}
	return items, total, nil
}

// editableExam loads the exam and guards authoring writes: the caller
// must own it (or be an admin) and no submission may reference it yet.
func (s *examService) editableExam(ctx context.Context, examID uint, userID, action string) (*models.ExamDefinition, error) {
	exam, err := s.ownedExam(ctx, examID, userID, action)
	if err != nil {
		return nil, err
	}

	hasSubmissions, err := s.repo.Exam().HasSubmissions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to check submissions: %w", err)
	}
	if hasSubmissions {
		return nil, ErrExamNotEditable
	}
	return exam, nil
}

func (s *examService) ownedExam(ctx context.Context, examID uint, userID, action string) (*models.ExamDefinition, error) {
	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewPermissionError(userID, examID, "exam", action, "user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role != models.RoleAdmin && exam.CreatedBy != userID {
		return nil, NewPermissionError(userID, examID, "exam", action, "not the exam owner")
	}
	return exam, nil
}

func (s *examService) checkAuthor(ctx context.Context, userID string) error {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return NewPermissionError(userID, 0, "exam", "create", "user not found")
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role != models.RoleTeacher && user.Role != models.RoleAdmin {
		return NewPermissionError(userID, 0, "exam", "create", "requires teacher or admin role")
	}
	return nil
}

func (s *examService) invalidate(ctx context.Context, examID uint) {
	for _, key := range []string{
		fmt.Sprintf(examCacheKeyFmt, examID),
		fmt.Sprintf(examItemsCacheFmt, examID),
	} {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("exam cache invalidation failed", "key", key, "error", err)
		}
	}
}
