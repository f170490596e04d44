package services

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/adaptix-edu/exam-service/internal/grading"
	"github.com/adaptix-edu/exam-service/internal/models"
	"github.com/adaptix-edu/exam-service/internal/repositories"
	"github.com/stretchr/testify/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fixedClock returns a settable instant so expiry cases are deterministic.
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

// ===== REPOSITORY MOCKS =====

type MockExamRepository struct {
	mock.Mock
}

func (m *MockExamRepository) Create(ctx context.Context, exam *models.ExamDefinition) error {
	args := m.Called(ctx, exam)
	return args.Error(0)
}

func (m *MockExamRepository) GetByID(ctx context.Context, id uint) (*models.ExamDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExamDefinition), args.Error(1)
}

func (m *MockExamRepository) GetByIDWithItems(ctx context.Context, id uint) (*models.ExamDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExamDefinition), args.Error(1)
}

func (m *MockExamRepository) Update(ctx context.Context, exam *models.ExamDefinition) error {
	args := m.Called(ctx, exam)
	return args.Error(0)
}

func (m *MockExamRepository) UpdateStatus(ctx context.Context, id uint, status models.ExamStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockExamRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockExamRepository) List(ctx context.Context, filters repositories.ExamFilters) ([]*models.ExamDefinition, int64, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]*models.ExamDefinition), args.Get(1).(int64), args.Error(2)
}

func (m *MockExamRepository) HasSubmissions(ctx context.Context, id uint) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) CreateBatch(ctx context.Context, items []*models.Item) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func (m *MockItemRepository) GetByID(ctx context.Context, id uint) (*models.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Item), args.Error(1)
}

func (m *MockItemRepository) GetByExam(ctx context.Context, examID uint) ([]*models.Item, error) {
	args := m.Called(ctx, examID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Item), args.Error(1)
}

func (m *MockItemRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockSubmissionRepository struct {
	mock.Mock
}

func (m *MockSubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	args := m.Called(ctx, submission)
	return args.Error(0)
}

func (m *MockSubmissionRepository) GetByID(ctx context.Context, id uint) (*models.Submission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Submission), args.Error(1)
}

func (m *MockSubmissionRepository) GetByIDWithDetails(ctx context.Context, id uint) (*models.Submission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Submission), args.Error(1)
}

func (m *MockSubmissionRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Submission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Submission), args.Error(1)
}

func (m *MockSubmissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	args := m.Called(ctx, submission)
	return args.Error(0)
}

func (m *MockSubmissionRepository) GetActive(ctx context.Context, examID uint, studentID string) (*models.Submission, error) {
	args := m.Called(ctx, examID, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Submission), args.Error(1)
}

func (m *MockSubmissionRepository) List(ctx context.Context, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]*models.Submission), args.Get(1).(int64), args.Error(2)
}

func (m *MockSubmissionRepository) GetByExam(ctx context.Context, examID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	args := m.Called(ctx, examID, filters)
	return args.Get(0).([]*models.Submission), args.Get(1).(int64), args.Error(2)
}

func (m *MockSubmissionRepository) RecordServed(ctx context.Context, served *models.ServedItem) error {
	args := m.Called(ctx, served)
	return args.Error(0)
}

func (m *MockSubmissionRepository) GetServedItemIDs(ctx context.Context, submissionID uint) ([]uint, error) {
	args := m.Called(ctx, submissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint), args.Error(1)
}

type MockAnswerRepository struct {
	mock.Mock
}

func (m *MockAnswerRepository) Create(ctx context.Context, answer *models.Answer) error {
	args := m.Called(ctx, answer)
	return args.Error(0)
}

func (m *MockAnswerRepository) Update(ctx context.Context, answer *models.Answer) error {
	args := m.Called(ctx, answer)
	return args.Error(0)
}

func (m *MockAnswerRepository) GetByID(ctx context.Context, id uint) (*models.Answer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Answer), args.Error(1)
}

func (m *MockAnswerRepository) GetBySubmission(ctx context.Context, submissionID uint) ([]*models.Answer, error) {
	args := m.Called(ctx, submissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Answer), args.Error(1)
}

func (m *MockAnswerRepository) GetBySubmissionAndItem(ctx context.Context, submissionID, itemID uint) (*models.Answer, error) {
	args := m.Called(ctx, submissionID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Answer), args.Error(1)
}

func (m *MockAnswerRepository) HasAnswer(ctx context.Context, submissionID, itemID uint) (bool, error) {
	args := m.Called(ctx, submissionID, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAnswerRepository) GetAnsweredItemIDs(ctx context.Context, submissionID uint) ([]uint, error) {
	args := m.Called(ctx, submissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint), args.Error(1)
}

type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Create(ctx context.Context, entry *models.ReviewAuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditRepository) GetBySubmission(ctx context.Context, submissionID uint) ([]*models.ReviewAuditLog, error) {
	args := m.Called(ctx, submissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ReviewAuditLog), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockRepository bundles the entity mocks. Begin hands back the same
// instance, so transactional and plain calls share one expectation set.
type MockRepository struct {
	ExamRepo       *MockExamRepository
	ItemRepo       *MockItemRepository
	SubmissionRepo *MockSubmissionRepository
	AnswerRepo     *MockAnswerRepository
	AuditRepo      *MockAuditRepository
	UserRepo       *MockUserRepository

	BeginErr  error
	CommitErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		ExamRepo:       new(MockExamRepository),
		ItemRepo:       new(MockItemRepository),
		SubmissionRepo: new(MockSubmissionRepository),
		AnswerRepo:     new(MockAnswerRepository),
		AuditRepo:      new(MockAuditRepository),
		UserRepo:       new(MockUserRepository),
	}
}

func (m *MockRepository) Exam() repositories.ExamRepository             { return m.ExamRepo }
func (m *MockRepository) Item() repositories.ItemRepository             { return m.ItemRepo }
func (m *MockRepository) Submission() repositories.SubmissionRepository { return m.SubmissionRepo }
func (m *MockRepository) Answer() repositories.AnswerRepository         { return m.AnswerRepo }
func (m *MockRepository) Audit() repositories.AuditRepository           { return m.AuditRepo }
func (m *MockRepository) User() repositories.UserRepository             { return m.UserRepo }

func (m *MockRepository) Begin(ctx context.Context) (repositories.Repository, error) {
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	return m, nil
}

func (m *MockRepository) Commit(ctx context.Context) error   { return m.CommitErr }
func (m *MockRepository) Rollback(ctx context.Context) error { return nil }

// ===== GRADER MOCK =====

type MockGrader struct {
	mock.Mock
}

func (m *MockGrader) Grade(ctx context.Context, item *models.Item, submittedText *string, submittedImage []byte) (*grading.Result, error) {
	args := m.Called(ctx, item, submittedText, submittedImage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*grading.Result), args.Error(1)
}
