package services

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/mock"

	"skillgauge/models"
	"skillgauge/repository"
)

// MockSessionRepository is a mock type for the SessionRepository interface.
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) CreateActiveSession(ctx context.Context, session *models.AssessmentSession) (*models.AssessmentSession, bool, error) {
	args := m.Called(ctx, session)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.AssessmentSession), args.Bool(1), args.Error(2)
}

func (m *MockSessionRepository) FindActiveSession(ctx context.Context, workerID string, roundID uint) (*models.AssessmentSession, error) {
	args := m.Called(ctx, workerID, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AssessmentSession), args.Error(1)
}

func (m *MockSessionRepository) GetSession(ctx context.Context, sessionID string) (*models.AssessmentSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AssessmentSession), args.Error(1)
}

func (m *MockSessionRepository) MarkExpired(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	args := m.Called(ctx, sessionID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) UpsertAnswers(ctx context.Context, sessionID string, answers map[uint]int) error {
	args := m.Called(ctx, sessionID, answers)
	return args.Error(0)
}

func (m *MockSessionRepository) GetAnswers(ctx context.Context, sessionID string) (map[uint]int, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uint]int), args.Error(1)
}

// completeFunc lets a test run the ScoreFunc handed to CompleteSession.
type completeFunc func(score repository.ScoreFunc) (*models.AssessmentResult, bool, error)

func (m *MockSessionRepository) CompleteSession(ctx context.Context, sessionID string, now time.Time, score repository.ScoreFunc) (*models.AssessmentResult, bool, error) {
	args := m.Called(ctx, sessionID, now, score)
	if fn, ok := args.Get(0).(completeFunc); ok {
		return fn(score)
	}
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.AssessmentResult), args.Bool(1), args.Error(2)
}

func (m *MockSessionRepository) GetResultBySession(ctx context.Context, sessionID string) (*models.AssessmentResult, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AssessmentResult), args.Error(1)
}

func (m *MockSessionRepository) GetLatestResult(ctx context.Context, workerID string) (*models.AssessmentResult, error) {
	args := m.Called(ctx, workerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AssessmentResult), args.Error(1)
}

// MockQuestionRepository is a mock type for the QuestionRepository interface.
type MockQuestionRepository struct {
	mock.Mock
}

func (m *MockQuestionRepository) ListActive(ctx context.Context, subcategories []string) ([]models.Question, error) {
	args := m.Called(ctx, subcategories)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Question), args.Error(1)
}

func (m *MockQuestionRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Question, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Question), args.Error(1)
}

func (m *MockQuestionRepository) ActiveIDs(ctx context.Context, ids []uint) (map[uint]bool, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uint]bool), args.Error(1)
}

// MockRoundRepository is a mock type for the RoundRepository interface.
type MockRoundRepository struct {
	mock.Mock
}

func (m *MockRoundRepository) GetRound(ctx context.Context, roundID uint) (*models.AssessmentRound, error) {
	args := m.Called(ctx, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AssessmentRound), args.Error(1)
}

// MockPublisher is a mock type for the events.Publisher interface.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishResult(ctx context.Context, result *models.AssessmentResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockPublisher) Close() error { return nil }

// MockSampler returns a fixed slate.
type MockSampler struct {
	mock.Mock
}

func (m *MockSampler) Sample(round *models.AssessmentRound, pool []models.Question) ([]uint, []models.PoolShortfall) {
	args := m.Called(round, pool)
	var shortfalls []models.PoolShortfall
	if args.Get(1) != nil {
		shortfalls = args.Get(1).([]models.PoolShortfall)
	}
	return args.Get(0).([]uint), shortfalls
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// makeQuestions builds n active questions in subcategory starting at firstID. Choice 0 is correct.
func makeQuestions(firstID uint, n int, subcategory string) []models.Question {
	questions := make([]models.Question, 0, n)
	for i := 0; i < n; i++ {
		id := firstID + uint(i)
		questions = append(questions, models.Question{
			ID:             id,
			Text:           fmt.Sprintf("%s question %d", subcategory, id),
			Choices:        []string{"A", "B", "C", "D"},
			CorrectChoices: []int{0},
			Subcategory:    subcategory,
			Active:         true,
		})
	}
	return questions
}

func quotaRound(id uint, total int, quotas map[string]float64) *models.AssessmentRound {
	round := &models.AssessmentRound{
		ID:                 id,
		Title:              "Site safety and structure",
		TotalQuestionCount: total,
		DurationMinutes:    60,
	}
	for subcategory, p := range quotas {
		round.Quotas = append(round.Quotas, models.RoundQuota{RoundID: id, Subcategory: subcategory, Percentage: p})
	}
	return round
}
