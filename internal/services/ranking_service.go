package services

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/classforge/assessment-engine/internal/models"
	"github.com/classforge/assessment-engine/internal/repositories"
)

// scoreBucketBounds are the fixed histogram bands for class distributions.
var scoreBucketBounds = []ScoreBucket{
	{Label: "0-30", Min: 0, Max: 30},
	{Label: "31-50", Min: 31, Max: 50},
	{Label: "51-70", Min: 51, Max: 70},
	{Label: "71-90", Min: 71, Max: 90},
	{Label: "91-100", Min: 91, Max: 100},
}

type rankingService struct {
	gw     repositories.Gateway
	logger *slog.Logger
}

// NewRankingService creates the cross-student aggregation service. Rankings
// are recomputed from storage on every call; no cached rank is kept.
func NewRankingService(gw repositories.Gateway, logger *slog.Logger) RankingService {
	return &rankingService{gw: gw, logger: logger}
}

func (r *rankingService) Rank(ctx context.Context, assignmentID uint, studentID string) (*RankingResult, error) {
	attempts, err := r.gw.GetAttemptsForAssignment(ctx, assignmentID)
	if err != nil {
		r.logger.Warn("Ranking aggregation unavailable, using single-student fallback",
			"assignment_id", assignmentID,
			"error", err)
		return fallbackRanking(), &RankingUnavailableError{AssignmentID: assignmentID, Err: err}
	}
	result := computeRanking(attempts, studentID)
	return &result, nil
}

func (r *rankingService) Stats(ctx context.Context, assignmentID uint) (*AssignmentStats, error) {
	assignment, err := r.gw.GetAssignment(ctx, assignmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	attempts, err := r.gw.GetAttemptsForAssignment(ctx, assignmentID)
	if err != nil {
		return nil, &RankingUnavailableError{AssignmentID: assignmentID, Err: err}
	}

	stats := AssignmentStats{TotalAttempts: len(attempts)}
	for i := range attempts {
		if attempts[i].Finalized() {
			stats.FinalizedAttempts++
		}
	}

	best := bestScores(attempts)
	stats.RankedStudents = len(best)
	if len(best) == 0 {
		return &stats, nil
	}

	var sum float64
	passed := 0
	for _, score := range best {
		sum += score
		if score >= float64(assignment.PassingScore) {
			passed++
		}
	}
	stats.AverageScore = round2(sum / float64(len(best)))
	stats.PassRate = round2(float64(passed) / float64(len(best)))
	return &stats, nil
}

func (r *rankingService) Summary(ctx context.Context, attemptID string, studentID string) (*ResultSummary, error) {
	attempt, err := r.gw.GetAttempt(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	if attempt.StudentID != studentID {
		return nil, ErrNotAttemptOwner
	}

	assignment, err := r.gw.GetAssignment(ctx, attempt.AssignmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	questions, err := r.gw.GetQuestions(ctx, assignment.AssessmentID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, err
	}
	answers, err := r.gw.GetAnswers(ctx, attemptID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, err
	}

	summary := &ResultSummary{
		AttemptID:    attempt.ID,
		StudentID:    attempt.StudentID,
		AssignmentID: attempt.AssignmentID,
		StartedAt:    attempt.StartedAt,
		EndedAt:      attempt.EndedAt,
		Score:        attempt.Score,
		Scoring:      Score(questions, answers),
	}
	if attempt.Score != nil {
		summary.Passed = *attempt.Score >= float64(assignment.PassingScore)
	}

	ranking, err := r.Rank(ctx, attempt.AssignmentID, studentID)
	if err != nil {
		var unavailable *RankingUnavailableError
		if !errors.As(err, &unavailable) {
			return nil, err
		}
		// Fallback ranking still renders a usable summary.
	}
	if ranking.Fallback && attempt.Score != nil {
		// A class of one: the student's own score is the class average.
		ranking.ClassAverage = *attempt.Score
	}
	summary.Ranking = *ranking

	return summary, nil
}

// computeRanking is pure: it derives rank, class average and distribution
// from a slice of attempts. A student's standing uses their best finalized
// score; rank is one plus the number of students with a strictly higher
// best, so ties share a rank.
func computeRanking(attempts []models.Attempt, studentID string) RankingResult {
	best := bestScores(attempts)
	if len(best) == 0 {
		return *fallbackRanking()
	}

	result := RankingResult{
		TotalRankedStudents: len(best),
		Distribution:        emptyBuckets(),
	}

	var sum float64
	for _, score := range best {
		sum += score
		result.Distribution[bucketIndex(score)].Count++
	}
	result.ClassAverage = round2(sum / float64(len(best)))

	own, ranked := best[studentID]
	if !ranked {
		// No scored attempt yet: placed after every ranked student.
		result.Rank = len(best) + 1
		return result
	}
	result.Rank = 1
	for _, score := range best {
		if score > own {
			result.Rank++
		}
	}
	return result
}

// bestScores maps each student to the highest score among their finalized
// attempts. Attempts without a persisted score do not rank.
func bestScores(attempts []models.Attempt) map[string]float64 {
	best := make(map[string]float64)
	for i := range attempts {
		a := &attempts[i]
		if !a.Finalized() || a.Score == nil {
			continue
		}
		if current, ok := best[a.StudentID]; !ok || *a.Score > current {
			best[a.StudentID] = *a.Score
		}
	}
	return best
}

func fallbackRanking() *RankingResult {
	return &RankingResult{
		Rank:                1,
		TotalRankedStudents: 1,
		Distribution:        emptyBuckets(),
		Fallback:            true,
	}
}

func emptyBuckets() []ScoreBucket {
	buckets := make([]ScoreBucket, len(scoreBucketBounds))
	copy(buckets, scoreBucketBounds)
	return buckets
}

func bucketIndex(score float64) int {
	for i := range scoreBucketBounds {
		if score <= scoreBucketBounds[i].Max {
			return i
		}
	}
	return len(scoreBucketBounds) - 1
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
