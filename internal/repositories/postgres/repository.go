package postgres

import (
	"context"
	"errors"

	"github.com/adaptix-edu/exam-service/internal/repositories"
	"gorm.io/gorm"
)

// GormRepository is the postgres-backed aggregate repository. A value
// returned by Begin shares the same type but holds the transaction handle.
type GormRepository struct {
	db   *gorm.DB
	inTx bool
}

func NewRepository(db *gorm.DB) repositories.TransactionRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Exam() repositories.ExamRepository {
	return &ExamPostgreSQL{db: r.db}
}

func (r *GormRepository) Item() repositories.ItemRepository {
	return &ItemPostgreSQL{db: r.db}
}

func (r *GormRepository) Submission() repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{db: r.db}
}

func (r *GormRepository) Answer() repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: r.db}
}

func (r *GormRepository) Audit() repositories.AuditRepository {
	return &AuditPostgreSQL{db: r.db}
}

func (r *GormRepository) User() repositories.UserRepository {
	return &UserPostgreSQL{db: r.db}
}

func (r *GormRepository) Begin(ctx context.Context) (repositories.Repository, error) {
	if r.inTx {
		return nil, errors.New("transaction already started")
	}
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &GormRepository{db: tx, inTx: true}, nil
}

func (r *GormRepository) Commit(ctx context.Context) error {
	if !r.inTx {
		return errors.New("no transaction in progress")
	}
	return r.db.Commit().Error
}

func (r *GormRepository) Rollback(ctx context.Context) error {
	if !r.inTx {
		return errors.New("no transaction in progress")
	}
	return r.db.Rollback().Error
}
