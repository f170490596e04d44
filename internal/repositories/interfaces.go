package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/adaptix-edu/exam-service/internal/models"
	"gorm.io/gorm"
)

// Repository aggregates the per-entity repositories. Implementations
// scoped to a transaction are produced by TransactionRepository.Begin.
type Repository interface {
	Exam() ExamRepository
	Item() ItemRepository
	Submission() SubmissionRepository
	Answer() AnswerRepository
	Audit() AuditRepository
	User() UserRepository
}

// TransactionRepository is implemented by repositories that can open a
// transaction. Begin returns a Repository whose operations run inside it.
type TransactionRepository interface {
	Repository
	Begin(ctx context.Context) (Repository, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ===== FILTERS =====

type ExamFilters struct {
	Status    *models.ExamStatus `json:"status"`
	CreatedBy *string            `json:"created_by"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
	SortBy    string             `json:"sort_by"`    // "created_at", "title"
	SortOrder string             `json:"sort_order"` // "asc", "desc"
}

type SubmissionFilters struct {
	Status    *models.SubmissionStatus `json:"status"`
	StudentID *string                  `json:"student_id"`
	ExamID    *uint                    `json:"exam_id"`
	DateFrom  *time.Time               `json:"date_from"`
	DateTo    *time.Time               `json:"date_to"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
}

// ===== PER-ENTITY INTERFACES =====

type ExamRepository interface {
	Create(ctx context.Context, exam *models.ExamDefinition) error
	GetByID(ctx context.Context, id uint) (*models.ExamDefinition, error)
	GetByIDWithItems(ctx context.Context, id uint) (*models.ExamDefinition, error)
	Update(ctx context.Context, exam *models.ExamDefinition) error
	UpdateStatus(ctx context.Context, id uint, status models.ExamStatus) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filters ExamFilters) ([]*models.ExamDefinition, int64, error)
	HasSubmissions(ctx context.Context, id uint) (bool, error)
}

type ItemRepository interface {
	CreateBatch(ctx context.Context, items []*models.Item) error
	GetByID(ctx context.Context, id uint) (*models.Item, error)
	GetByExam(ctx context.Context, examID uint) ([]*models.Item, error)
	Delete(ctx context.Context, id uint) error
}

type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (*models.Submission, error)
	GetByIDWithDetails(ctx context.Context, id uint) (*models.Submission, error)

	// GetByIDForUpdate acquires a row lock on the submission; it must be
	// called inside a transaction.
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Submission, error)

	Update(ctx context.Context, submission *models.Submission) error
	GetActive(ctx context.Context, examID uint, studentID string) (*models.Submission, error)
	List(ctx context.Context, filters SubmissionFilters) ([]*models.Submission, int64, error)
	GetByExam(ctx context.Context, examID uint, filters SubmissionFilters) ([]*models.Submission, int64, error)

	// Served item tracking
	RecordServed(ctx context.Context, served *models.ServedItem) error
	GetServedItemIDs(ctx context.Context, submissionID uint) ([]uint, error)
}

type AnswerRepository interface {
	Create(ctx context.Context, answer *models.Answer) error
	Update(ctx context.Context, answer *models.Answer) error
	GetByID(ctx context.Context, id uint) (*models.Answer, error)
	GetBySubmission(ctx context.Context, submissionID uint) ([]*models.Answer, error)
	GetBySubmissionAndItem(ctx context.Context, submissionID, itemID uint) (*models.Answer, error)
	HasAnswer(ctx context.Context, submissionID, itemID uint) (bool, error)
	GetAnsweredItemIDs(ctx context.Context, submissionID uint) ([]uint, error)
}

type AuditRepository interface {
	Create(ctx context.Context, entry *models.ReviewAuditLog) error
	GetBySubmission(ctx context.Context, submissionID uint) ([]*models.ReviewAuditLog, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// IsNotFoundError reports whether err is a record-not-found condition
// from the underlying store.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
