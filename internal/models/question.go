package models

import (
	"time"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	ShortAnswer    QuestionType = "short_answer"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// DefaultQuestionPoints is used when a question carries no explicit point value.
const DefaultQuestionPoints = 5

type Question struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	AssessmentID uint         `json:"assessment_id" gorm:"not null;index"`
	Type         QuestionType `json:"type" gorm:"not null;index" validate:"required,question_type"`
	Text         string       `json:"text" gorm:"type:text;not null" validate:"required,max=2000"`
	Points       int          `json:"points" gorm:"default:5" validate:"omitempty,points_range"`
	Order        int          `json:"order" gorm:"default:0"`

	// CorrectAnswer holds the option key for multiple choice questions and the
	// accepted text for short answer questions.
	CorrectAnswer string `json:"correct_answer" gorm:"size:500;not null"`

	Difficulty DifficultyLevel `json:"difficulty" gorm:"default:medium;index"`

	// Metadata
	Explanation *string   `json:"explanation" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relations
	Options []QuestionOption `json:"options" gorm:"foreignKey:QuestionID"`
}

func (Question) TableName() string {
	return "questions"
}

// EffectivePoints returns the question's weight, falling back to the default
// when no explicit point value is set.
func (q *Question) EffectivePoints() int {
	if q.Points <= 0 {
		return DefaultQuestionPoints
	}
	return q.Points
}

// QuestionOption is one selectable choice of a multiple choice question.
// Key is the identifier students submit as their answer ("A", "B", ...).
type QuestionOption struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Key        string `json:"key" gorm:"size:50;not null" validate:"required,max=50"`
	Text       string `json:"text" gorm:"type:text;not null" validate:"required"`
	Order      int    `json:"order" gorm:"default:0"`
}

func (QuestionOption) TableName() string {
	return "question_options"
}
