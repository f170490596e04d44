package postgres

import (
	"context"

	"github.com/adaptix-edu/exam-service/internal/models"
	"gorm.io/gorm"
)

type AnswerPostgreSQL struct {
	db *gorm.DB
}

func (a *AnswerPostgreSQL) Create(ctx context.Context, answer *models.Answer) error {
	return a.db.WithContext(ctx).Create(answer).Error
}

func (a *AnswerPostgreSQL) Update(ctx context.Context, answer *models.Answer) error {
	return a.db.WithContext(ctx).Save(answer).Error
}

func (a *AnswerPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Answer, error) {
	var answer models.Answer
	if err := a.db.WithContext(ctx).First(&answer, id).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) GetBySubmission(ctx context.Context, submissionID uint) ([]*models.Answer, error) {
	var answers []*models.Answer
	if err := a.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Preload("Item").
		Order("answered_at ASC, id ASC").
		Find(&answers).Error; err != nil {
		return nil, err
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) GetBySubmissionAndItem(ctx context.Context, submissionID, itemID uint) (*models.Answer, error) {
	var answer models.Answer
	if err := a.db.WithContext(ctx).
		Where("submission_id = ? AND item_id = ?", submissionID, itemID).
		First(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) HasAnswer(ctx context.Context, submissionID, itemID uint) (bool, error) {
	var count int64
	if err := a.db.WithContext(ctx).
		Model(&models.Answer{}).
		Where("submission_id = ? AND item_id = ?", submissionID, itemID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (a *AnswerPostgreSQL) GetAnsweredItemIDs(ctx context.Context, submissionID uint) ([]uint, error) {
	var ids []uint
	if err := a.db.WithContext(ctx).
		Model(&models.Answer{}).
		Where("submission_id = ?", submissionID).
		Pluck("item_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
