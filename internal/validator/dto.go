package validator

// StartSessionRequest is the payload for starting a new attempt session.
type StartSessionRequest struct {
	AssignmentID uint `json:"assignment_id" validate:"required"`
}

// SaveAnswerRequest is the payload for recording an answer selection.
type SaveAnswerRequest struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	Text       string `json:"text" validate:"max=4000"`
}

// BrowseRequest selects which attempt the history browser is positioned on.
type BrowseRequest struct {
	AssignmentID     uint   `json:"assignment_id" validate:"required"`
	CurrentAttemptID string `json:"current_attempt_id" validate:"omitempty,uuid4"`
}
