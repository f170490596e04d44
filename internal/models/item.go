package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ItemKind string

const (
	ItemMultipleChoice ItemKind = "multiple_choice"
	ItemFreeText       ItemKind = "free_text"
)

// ChoiceOption is one entry of a multiple-choice item. Options are stored
// as an ordered list rather than a map so that display order is stable and
// duplicate keys can be rejected at validation time.
type ChoiceOption struct {
	Key  string `json:"key" validate:"required,min=1,max=10"`
	Text string `json:"text" validate:"required,min=1,max=1000"`
}

// Item is a single question with its grading metadata. Items are authored
// up front and must not change once a live submission references them.
type Item struct {
	ID           uint     `json:"id" gorm:"primaryKey"`
	ExamID       uint     `json:"exam_id" gorm:"not null;index"`
	QuestionText string   `json:"question_text" gorm:"not null;type:text" validate:"required,min=1"`
	Kind         ItemKind `json:"kind" gorm:"not null;size:20;index" validate:"required,oneof=multiple_choice free_text"`
	Difficulty   float64  `json:"difficulty" gorm:"not null;default:0.5" validate:"min=0,max=1"`
	Points       int      `json:"points" gorm:"not null;default:1" validate:"required,min=1"`

	// Position orders items when the exam is served in fixed order.
	Position int `json:"position" gorm:"not null;default:0"`

	// Multiple-choice fields.
	Options       datatypes.JSON `json:"options,omitempty" gorm:"type:jsonb"` // []ChoiceOption
	CorrectChoice *string        `json:"correct_choice,omitempty" gorm:"size:10"`

	// Free-text field.
	ReferenceAnswer *string `json:"reference_answer,omitempty" gorm:"type:text"`

	CreatedBy string         `json:"created_by" gorm:"not null;size:255;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Exam *ExamDefinition `json:"-" gorm:"foreignKey:ExamID"`
}

func (Item) TableName() string {
	return "items"
}

// ChoiceOptions decodes the stored option list.
func (i *Item) ChoiceOptions() ([]ChoiceOption, error) {
	if len(i.Options) == 0 {
		return nil, nil
	}
	var opts []ChoiceOption
	if err := json.Unmarshal(i.Options, &opts); err != nil {
		return nil, fmt.Errorf("decode item %d options: %w", i.ID, err)
	}
	return opts, nil
}

// SetChoiceOptions encodes the option list into the JSONB column.
func (i *Item) SetChoiceOptions(opts []ChoiceOption) error {
	raw, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("encode item options: %w", err)
	}
	i.Options = datatypes.JSON(raw)
	return nil
}
