package models

import (
	"time"

	"gorm.io/gorm"
)

type ExamStatus string

const (
	ExamDraft    ExamStatus = "draft"
	ExamActive   ExamStatus = "active"
	ExamArchived ExamStatus = "archived"
)

// ExamDefinition describes one exam: its timing, scoring policy and the
// item set. When AdaptiveEnabled is true the items act as a pool and the
// adaptive engine picks the serving order; otherwise items are served by
// their stored position.
type ExamDefinition struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Title       string     `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string    `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Status      ExamStatus `json:"status" gorm:"not null;default:draft;index" validate:"omitempty,oneof=draft active archived"`

	DurationSeconds int     `json:"duration_seconds" gorm:"not null" validate:"required,min=60,max=18000"`
	TotalPoints     int     `json:"total_points" gorm:"not null" validate:"min=0"`
	PassingRatio    float64 `json:"passing_ratio" gorm:"not null;default:0.4" validate:"min=0,max=1"`

	AdaptiveEnabled   bool `json:"adaptive_enabled" gorm:"default:true"`
	ProctoringEnabled bool `json:"proctoring_enabled" gorm:"default:false"`

	CreatedBy string         `json:"created_by" gorm:"not null;size:255;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Items       []Item       `json:"items,omitempty" gorm:"foreignKey:ExamID"`
	Submissions []Submission `json:"-" gorm:"foreignKey:ExamID"`
}

func (ExamDefinition) TableName() string {
	return "exam_definitions"
}

// HasItem reports whether the given item belongs to this exam. The exam
// must have been loaded with its items.
func (e *ExamDefinition) HasItem(itemID uint) bool {
	for i := range e.Items {
		if e.Items[i].ID == itemID {
			return true
		}
	}
	return false
}
