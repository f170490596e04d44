package postgres

import (
	"context"

	"github.com/adaptix-edu/exam-service/internal/models"
	"gorm.io/gorm"
)

type ItemPostgreSQL struct {
	db *gorm.DB
}

func (i *ItemPostgreSQL) CreateBatch(ctx context.Context, items []*models.Item) error {
	if len(items) == 0 {
		return nil
	}
	return i.db.WithContext(ctx).Create(items).Error
}

func (i *ItemPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Item, error) {
	var item models.Item
	if err := i.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (i *ItemPostgreSQL) GetByExam(ctx context.Context, examID uint) ([]*models.Item, error) {
	var items []*models.Item
	if err := i.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("position ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (i *ItemPostgreSQL) Delete(ctx context.Context, id uint) error {
	return i.db.WithContext(ctx).Delete(&models.Item{}, id).Error
}
