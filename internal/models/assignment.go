package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// AssignmentSettings are optional per-assignment delivery options, stored as
// a JSON column so new options do not need schema changes.
type AssignmentSettings struct {
	ShuffleQuestions bool `json:"shuffle_questions"`
	ShowResults      bool `json:"show_results"`
}

// ClassAssignment binds an assessment to a class with an answering window and
// an attempt cap.
type ClassAssignment struct {
	ID           uint `json:"id" gorm:"primaryKey"`
	AssessmentID uint `json:"assessment_id" gorm:"not null;index"`
	ClassID      uint `json:"class_id" gorm:"not null;index"`

	StartAt time.Time `json:"start_at" gorm:"not null"`
	DueAt   time.Time `json:"due_at" gorm:"not null"`

	// AttemptLimit caps attempts per student; zero means unlimited.
	AttemptLimit int `json:"attempt_limit" gorm:"default:1" validate:"min=0,max=10"`

	PassingScore int `json:"passing_score" gorm:"not null" validate:"min=0,max=100"`

	Settings datatypes.JSON `json:"settings" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Assessment Assessment `json:"assessment" gorm:"foreignKey:AssessmentID"`
}

func (ClassAssignment) TableName() string {
	return "class_assignments"
}

// DeliverySettings decodes the settings column; absent or malformed
// settings yield the zero defaults.
func (ca *ClassAssignment) DeliverySettings() AssignmentSettings {
	var s AssignmentSettings
	if len(ca.Settings) > 0 {
		_ = json.Unmarshal(ca.Settings, &s)
	}
	return s
}

// Unlimited reports whether the assignment places no cap on attempts.
func (ca *ClassAssignment) Unlimited() bool {
	return ca.AttemptLimit <= 0
}

// WindowContains reports whether t falls inside the answering window.
func (ca *ClassAssignment) WindowContains(t time.Time) bool {
	return !t.Before(ca.StartAt) && !t.After(ca.DueAt)
}
