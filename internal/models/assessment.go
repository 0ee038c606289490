package models

import (
	"time"

	"gorm.io/gorm"
)

type Assessment struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`

	// TimeLimit is the attempt duration in minutes.
	TimeLimit int `json:"time_limit" gorm:"not null" validate:"required,min=1,max=300"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Questions []Question `json:"questions" gorm:"foreignKey:AssessmentID"`

	// Computed fields (not stored)
	QuestionsCount int `json:"questions_count" gorm:"-"`
	TotalPoints    int `json:"total_points" gorm:"-"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// Duration returns the attempt time limit as a duration.
func (a *Assessment) Duration() time.Duration {
	return time.Duration(a.TimeLimit) * time.Minute
}
