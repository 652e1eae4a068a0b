package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"skillgauge/events"
	"skillgauge/models"
	"skillgauge/repository"
)

// SubmissionOutcome is the result of a submit call. AlreadyCompleted marks an idempotent repeat.
type SubmissionOutcome struct {
	Result           *models.AssessmentResult
	AlreadyCompleted bool
}

// ScoringEngine scores sessions exactly once and serves stored results.
type ScoringEngine interface {
	Submit(ctx context.Context, sessionID, workerID string, answers map[uint]int) (*SubmissionOutcome, error)
	LatestResult(ctx context.Context, workerID string) (*models.AssessmentResult, error)
}

type scoringService struct {
	sessions       repository.SessionRepository
	questions      repository.QuestionRepository
	rounds         repository.RoundRepository
	analyzer       BreakdownAnalyzer
	publisher      events.Publisher
	defaultPassing int
	now            Clock
}

// NewScoringService creates a new instance of ScoringEngine.
// defaultPassing applies to rounds without their own passing percentage.
func NewScoringService(
	sessions repository.SessionRepository,
	questions repository.QuestionRepository,
	rounds repository.RoundRepository,
	analyzer BreakdownAnalyzer,
	publisher events.Publisher,
	defaultPassing int,
	clock Clock,
) ScoringEngine {
	if clock == nil {
		clock = SystemClock
	}
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	return &scoringService{
		sessions:       sessions,
		questions:      questions,
		rounds:         rounds,
		analyzer:       analyzer,
		publisher:      publisher,
		defaultPassing: defaultPassing,
		now:            clock,
	}
}

func (s *scoringService) Submit(ctx context.Context, sessionID, workerID string, answers map[uint]int) (*SubmissionOutcome, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if workerID != "" && session.WorkerID != workerID {
		return nil, fmt.Errorf("%w: session %s belongs to another worker", ErrForbidden, sessionID)
	}

	if session.Status == models.SessionStatusSubmitted {
		stored, err := s.sessions.GetResultBySession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load result for session %s: %w", sessionID, err)
		}
		if stored != nil {
			log.Printf("INFO: [ScoringService] Session %s already completed; returning stored result.", sessionID)
			return &SubmissionOutcome{Result: stored, AlreadyCompleted: true}, nil
		}
	}

	round, err := s.rounds.GetRound(ctx, session.RoundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load round %d: %w", session.RoundID, err)
	}
	if round == nil {
		return nil, fmt.Errorf("%w: round %d of session %s", ErrNotFound, session.RoundID, sessionID)
	}
	questions, err := s.questions.GetByIDs(ctx, session.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for session %s: %w", sessionID, err)
	}
	byID := make(map[uint]models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	if session.Status != models.SessionStatusSubmitted {
		if err := validateAnswers(session, byID, answers); err != nil {
			return nil, err
		}
	}

	now := s.now()
	scoreFn := func(locked *models.AssessmentSession, stored map[uint]int) (*models.AssessmentResult, error) {
		merged := make(map[uint]int, len(stored)+len(answers))
		for id, choice := range stored {
			merged[id] = choice
		}
		for id, choice := range answers {
			merged[id] = choice
		}
		return s.score(locked, round, byID, merged, now), nil
	}

	result, already, err := s.sessions.CompleteSession(ctx, sessionID, now, scoreFn)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionNotFound):
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		case errors.Is(err, repository.ErrConflict):
			// Another submission won; converge on its result.
			log.Printf("WARN: [ScoringService] Concurrent submission for session %s; re-reading stored result.", sessionID)
			stored, readErr := s.sessions.GetResultBySession(ctx, sessionID)
			if readErr != nil {
				return nil, fmt.Errorf("failed to re-read result for session %s: %w", sessionID, readErr)
			}
			if stored == nil {
				return nil, fmt.Errorf("%w: session %s", ErrConcurrencyConflict, sessionID)
			}
			return &SubmissionOutcome{Result: stored, AlreadyCompleted: true}, nil
		}
		return nil, fmt.Errorf("failed to submit session %s: %w", sessionID, err)
	}

	if !already {
		log.Printf("INFO: [ScoringService] Session %s scored %d/%d (%d%%, passed=%t).", sessionID, result.Score, result.TotalQuestions, result.Percentage, result.Passed)
		if pubErr := s.publisher.PublishResult(ctx, result); pubErr != nil {
			log.Printf("WARN: [ScoringService] Failed to publish result event for session %s: %v", sessionID, pubErr)
		}
	}
	return &SubmissionOutcome{Result: result, AlreadyCompleted: already}, nil
}

// score grades every session question; unanswered questions count as incorrect.
func (s *scoringService) score(session *models.AssessmentSession, round *models.AssessmentRound, questions map[uint]models.Question, answers map[uint]int, now time.Time) *models.AssessmentResult {
	scored := make([]ScoredAnswer, 0, len(session.QuestionIDs))
	subcategories := make(map[uint]string, len(session.QuestionIDs))
	correct := 0
	for _, id := range session.QuestionIDs {
		answer := ScoredAnswer{QuestionID: id}
		if q, ok := questions[id]; ok {
			subcategories[id] = q.Subcategory
			choice, answered := answers[id]
			answer.Answered = answered
			answer.Correct = answered && q.IsCorrect(choice)
		}
		if answer.Correct {
			correct++
		}
		scored = append(scored, answer)
	}

	total := len(session.QuestionIDs)
	percentage := percentOf(correct, total)
	passing := round.PassingThreshold(s.defaultPassing)
	breakdown := s.analyzer.Analyze(scored, subcategories)

	status := models.BreakdownFull
	if len(breakdown) == 0 {
		status = models.BreakdownUnavailable
	}

	return &models.AssessmentResult{
		SessionID:            session.ID,
		WorkerID:             session.WorkerID,
		RoundID:              session.RoundID,
		Score:                correct,
		TotalQuestions:       total,
		Percentage:           percentage,
		PassingPercentage:    passing,
		Passed:               total > 0 && percentage >= passing,
		BreakdownStatus:      status,
		Breakdown:            breakdown,
		StrongestArea:        StrongestArea(breakdown),
		WeakestArea:          WeakestArea(breakdown),
		SubmittedAfterExpiry: session.Status == models.SessionStatusExpired || session.ExpiredAt(now),
		FinishedAt:           now,
	}
}

func (s *scoringService) LatestResult(ctx context.Context, workerID string) (*models.AssessmentResult, error) {
	if workerID == "" {
		return nil, fmt.Errorf("%w: workerId is required", ErrValidation)
	}
	result, err := s.sessions.GetLatestResult(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest result for worker %s: %w", workerID, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: no results for worker %s", ErrNotFound, workerID)
	}
	return result, nil
}
