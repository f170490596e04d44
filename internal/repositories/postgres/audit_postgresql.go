package postgres

import (
	"context"

	"github.com/adaptix-edu/exam-service/internal/models"
	"gorm.io/gorm"
)

type AuditPostgreSQL struct {
	db *gorm.DB
}

func (a *AuditPostgreSQL) Create(ctx context.Context, entry *models.ReviewAuditLog) error {
	return a.db.WithContext(ctx).Create(entry).Error
}

func (a *AuditPostgreSQL) GetBySubmission(ctx context.Context, submissionID uint) ([]*models.ReviewAuditLog, error) {
	var entries []*models.ReviewAuditLog
	if err := a.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

type UserPostgreSQL struct {
	db *gorm.DB
}

func (u *UserPostgreSQL) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := u.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
