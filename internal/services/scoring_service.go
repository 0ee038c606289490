package services

import (
	"strings"

	"github.com/classforge/assessment-engine/internal/models"
)

// Score grades a completed attempt's answers against the assessment's
// questions. It is pure: no I/O, deterministic for identical inputs.
//
// Correctness rules by question type:
//   - multiple choice: the submitted option key equals the question's
//     correct key, compared case-insensitively; no partial credit.
//   - short answer: the submitted text, trimmed and case-folded, equals the
//     correct answer trimmed and case-folded; no fuzzy matching.
//   - missing or empty answer: incorrect, zero points.
func Score(questions []models.Question, answers []models.Answer) ScoreResult {
	byQuestion := make(map[uint]models.Answer, len(answers))
	for _, ans := range answers {
		byQuestion[ans.QuestionID] = ans
	}

	result := ScoreResult{
		Questions: make([]QuestionResult, 0, len(questions)),
	}

	for i := range questions {
		q := &questions[i]
		points := q.EffectivePoints()
		result.TotalPoints += points

		qr := QuestionResult{
			QuestionID: q.ID,
			Points:     points,
		}

		ans, ok := byQuestion[q.ID]
		if ok && strings.TrimSpace(ans.Text) != "" {
			qr.Answered = true
			qr.StudentAnswer = ans.Text
			qr.Correct = answerCorrect(q, ans.Text)
		}

		if qr.Correct {
			qr.EarnedPoints = points
			result.EarnedPoints += points
		}

		result.Questions = append(result.Questions, qr)
	}

	if result.TotalPoints > 0 {
		result.Percentage = float64(result.EarnedPoints) / float64(result.TotalPoints) * 100
	}

	return result
}

func answerCorrect(q *models.Question, text string) bool {
	switch q.Type {
	case models.MultipleChoice:
		// Both sides are option keys.
		return strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(q.CorrectAnswer))
	case models.ShortAnswer:
		return foldAnswer(text) == foldAnswer(q.CorrectAnswer)
	default:
		return false
	}
}

func foldAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
