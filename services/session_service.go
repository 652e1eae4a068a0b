package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"skillgauge/models"
	"skillgauge/repository"
)

// Clock returns the current time. Services read time only through it.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// SessionView is a session together with its round and its questions in session order.
type SessionView struct {
	Session   *models.AssessmentSession
	Round     *models.AssessmentRound
	Questions []models.Question
	Created   bool // false when an existing active session was returned
	// SavedAnswers holds progress saved on a resumed session. Empty for a new one.
	SavedAnswers map[uint]int
}

// SessionManager issues sessions and evaluates their expiry lazily.
type SessionManager interface {
	// GetOrCreateSession returns the worker's live session for the round, or issues a new one.
	GetOrCreateSession(ctx context.Context, workerID string, roundID uint) (*SessionView, error)
	// GetSession loads a session, expiring it first when its deadline has passed.
	GetSession(ctx context.Context, sessionID string) (*models.AssessmentSession, error)
	// Expire transitions an active session past its deadline to expired and returns its current state.
	Expire(ctx context.Context, sessionID string) (*models.AssessmentSession, error)
	// SaveAnswers records answers for an active session; the last write per question wins.
	SaveAnswers(ctx context.Context, sessionID, workerID string, answers map[uint]int) (int, error)
}

type sessionService struct {
	sessions  repository.SessionRepository
	questions repository.QuestionRepository
	rounds    repository.RoundRepository
	sampler   QuotaSampler
	now       Clock
}

// NewSessionService creates a new instance of SessionManager.
func NewSessionService(
	sessions repository.SessionRepository,
	questions repository.QuestionRepository,
	rounds repository.RoundRepository,
	sampler QuotaSampler,
	clock Clock,
) SessionManager {
	if clock == nil {
		clock = SystemClock
	}
	return &sessionService{
		sessions:  sessions,
		questions: questions,
		rounds:    rounds,
		sampler:   sampler,
		now:       clock,
	}
}

func (s *sessionService) GetOrCreateSession(ctx context.Context, workerID string, roundID uint) (*SessionView, error) {
	if workerID == "" {
		return nil, fmt.Errorf("%w: worker ID is required", ErrValidation)
	}
	round, err := s.rounds.GetRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load round %d: %w", roundID, err)
	}
	if round == nil {
		return nil, fmt.Errorf("%w: round %d", ErrNotFound, roundID)
	}

	// One retry: a lost insert race converges on the winner's session.
	for attempt := 0; attempt < 2; attempt++ {
		view, err := s.getOrCreateOnce(ctx, workerID, round)
		if errors.Is(err, repository.ErrConflict) {
			log.Printf("WARN: [SessionService] Conflict issuing session for worker '%s', round %d (attempt %d).", workerID, roundID, attempt+1)
			continue
		}
		return view, err
	}
	return nil, fmt.Errorf("%w: issuing session for worker %s, round %d", ErrConcurrencyConflict, workerID, roundID)
}

func (s *sessionService) getOrCreateOnce(ctx context.Context, workerID string, round *models.AssessmentRound) (*SessionView, error) {
	now := s.now()

	existing, err := s.sessions.FindActiveSession(ctx, workerID, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active session: %w", err)
	}
	if existing != nil {
		if !existing.ExpiredAt(now) {
			log.Printf("INFO: [SessionService] Worker '%s' continues session %s for round %d.", workerID, existing.ID, round.ID)
			return s.view(ctx, existing, round, false)
		}
		if _, err := s.sessions.MarkExpired(ctx, existing.ID, now); err != nil {
			return nil, fmt.Errorf("failed to expire session %s: %w", existing.ID, err)
		}
		log.Printf("INFO: [SessionService] Session %s for worker '%s' expired at %s; issuing a new one.", existing.ID, workerID, existing.ExpiresAt.Format(time.RFC3339))
	}

	if !round.OpenAt(now) {
		return nil, fmt.Errorf("%w: round %d", ErrRoundClosed, round.ID)
	}
	if round.TotalQuestionCount <= 0 || round.DurationMinutes <= 0 {
		return nil, fmt.Errorf("round %d is misconfigured: %d questions, %d minutes", round.ID, round.TotalQuestionCount, round.DurationMinutes)
	}

	quotas := round.QuotaMap()
	subcategories := make([]string, 0, len(quotas))
	for subcategory := range quotas {
		subcategories = append(subcategories, subcategory)
	}
	sort.Strings(subcategories)

	pool, err := s.questions.ListActive(ctx, subcategories)
	if err != nil {
		return nil, fmt.Errorf("failed to load question pool for round %d: %w", round.ID, err)
	}
	questionIDs, shortfalls := s.sampler.Sample(round, pool)

	session := &models.AssessmentSession{
		ID:          uuid.NewString(),
		WorkerID:    workerID,
		RoundID:     round.ID,
		QuestionIDs: questionIDs,
		Warnings:    shortfalls,
		CreatedAt:   now,
		ExpiresAt:   now.Add(round.Duration()),
	}
	stored, created, err := s.sessions.CreateActiveSession(ctx, session)
	if err != nil {
		return nil, err
	}
	if created {
		log.Printf("INFO: [SessionService] Issued session %s to worker '%s' for round %d with %d/%d questions.", stored.ID, workerID, round.ID, len(stored.QuestionIDs), round.TotalQuestionCount)
	}
	return s.view(ctx, stored, round, created)
}

func (s *sessionService) view(ctx context.Context, session *models.AssessmentSession, round *models.AssessmentRound, created bool) (*SessionView, error) {
	byID, err := s.loadQuestions(ctx, session)
	if err != nil {
		return nil, err
	}
	ordered := make([]models.Question, 0, len(session.QuestionIDs))
	for _, id := range session.QuestionIDs {
		q, ok := byID[id]
		if !ok {
			log.Printf("ERROR: [SessionService] Question %d of session %s is missing from the question bank.", id, session.ID)
			continue
		}
		ordered = append(ordered, q)
	}

	saved := map[uint]int{}
	if !created {
		saved, err = s.sessions.GetAnswers(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load saved answers for session %s: %w", session.ID, err)
		}
	}
	return &SessionView{Session: session, Round: round, Questions: ordered, Created: created, SavedAnswers: saved}, nil
}

func (s *sessionService) loadQuestions(ctx context.Context, session *models.AssessmentSession) (map[uint]models.Question, error) {
	questions, err := s.questions.GetByIDs(ctx, session.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for session %s: %w", session.ID, err)
	}
	byID := make(map[uint]models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return byID, nil
}

func (s *sessionService) GetSession(ctx context.Context, sessionID string) (*models.AssessmentSession, error) {
	return s.Expire(ctx, sessionID)
}

func (s *sessionService) Expire(ctx context.Context, sessionID string) (*models.AssessmentSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session ID is required", ErrValidation)
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	now := s.now()
	if session.Status != models.SessionStatusActive || !session.ExpiredAt(now) {
		return session, nil
	}
	changed, err := s.sessions.MarkExpired(ctx, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire session %s: %w", sessionID, err)
	}
	if !changed {
		// Someone else moved it first (submitted or expired); report the stored state.
		session, err = s.sessions.GetSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload session %s: %w", sessionID, err)
		}
		if session == nil {
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return session, nil
	}
	session.Status = models.SessionStatusExpired
	session.ActiveSlot = nil
	return session, nil
}

func (s *sessionService) SaveAnswers(ctx context.Context, sessionID, workerID string, answers map[uint]int) (int, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if workerID != "" && session.WorkerID != workerID {
		return 0, fmt.Errorf("%w: session %s belongs to another worker", ErrForbidden, sessionID)
	}
	if session.Status != models.SessionStatusActive {
		return 0, fmt.Errorf("%w: session %s is %s", ErrSessionClosed, sessionID, session.Status)
	}

	byID, err := s.loadQuestions(ctx, session)
	if err != nil {
		return 0, err
	}
	if err := validateAnswers(session, byID, answers); err != nil {
		return 0, err
	}

	if err := s.sessions.UpsertAnswers(ctx, sessionID, answers); err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionNotActive):
			return 0, fmt.Errorf("%w: session %s", ErrSessionClosed, sessionID)
		case errors.Is(err, repository.ErrSessionNotFound):
			return 0, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return 0, fmt.Errorf("failed to save answers for session %s: %w", sessionID, err)
	}
	return len(answers), nil
}

// validateAnswers rejects the whole set if any answer points outside the session or outside its choices.
func validateAnswers(session *models.AssessmentSession, questions map[uint]models.Question, answers map[uint]int) error {
	for questionID, choice := range answers {
		if !session.HasQuestion(questionID) {
			return fmt.Errorf("%w: question %d is not part of session %s", ErrValidation, questionID, session.ID)
		}
		q, ok := questions[questionID]
		if !ok {
			return fmt.Errorf("%w: question %d is unknown", ErrValidation, questionID)
		}
		if !q.ValidChoice(choice) {
			return fmt.Errorf("%w: choice %d is out of range for question %d", ErrValidation, choice, questionID)
		}
	}
	return nil
}
