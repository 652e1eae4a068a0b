package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"skillgauge/models"
)

func startRedis(ctx context.Context, t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = redisC.Terminate(context.Background()) })

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)
	addr := fmt.Sprintf("%s:%s", host, port.Port())
	t.Logf("Started Redis container at %s", addr)
	return addr
}

func TestRedisPoolCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()
	cache := NewRedisPoolCache(startRedis(ctx, t), "", 0, time.Minute)
	defer cache.Close()
	require.NoError(t, cache.Ping(ctx))

	pool := []models.Question{{
		ID:             7,
		Text:           "Minimum concrete cover for footings?",
		Choices:        []string{"20mm", "50mm", "75mm"},
		CorrectChoices: []int{2},
		Subcategory:    "concrete",
		Active:         true,
	}}

	_, hit, err := cache.GetPool(ctx, []string{"rebar", "concrete"})
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.SetPool(ctx, []string{"rebar", "concrete"}, pool))

	got, hit, err := cache.GetPool(ctx, []string{"concrete", "rebar"})
	require.NoError(t, err)
	assert.True(t, hit, "key does not depend on subcategory order")
	require.Len(t, got, 1)
	assert.Equal(t, []int{2}, []int(got[0].CorrectChoices), "answer key survives the round trip")
	assert.Equal(t, pool[0].Choices, got[0].Choices)
}

type MockPoolCache struct {
	mock.Mock
}

func (m *MockPoolCache) GetPool(ctx context.Context, subcategories []string) ([]models.Question, bool, error) {
	args := m.Called(ctx, subcategories)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]models.Question), args.Bool(1), args.Error(2)
}

func (m *MockPoolCache) SetPool(ctx context.Context, subcategories []string, pool []models.Question) error {
	args := m.Called(ctx, subcategories, pool)
	return args.Error(0)
}

func TestCachedQuestionRepository_ListActive(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedQuestions(t, db, "rebar", 1, 2, true)
	subcategories := []string{"rebar"}

	t.Run("miss reads through and fills the cache", func(t *testing.T) {
		cache := new(MockPoolCache)
		repo := NewCachedQuestionRepository(NewQuestionRepository(db), cache)
		cache.On("GetPool", ctx, subcategories).Return(nil, false, nil).Once()
		cache.On("SetPool", ctx, subcategories, mock.MatchedBy(func(p []models.Question) bool { return len(p) == 2 })).Return(nil).Once()

		pool, err := repo.ListActive(ctx, subcategories)

		require.NoError(t, err)
		assert.Len(t, pool, 2)
		cache.AssertExpectations(t)
	})

	t.Run("hit skips the pool query", func(t *testing.T) {
		cache := new(MockPoolCache)
		repo := NewCachedQuestionRepository(NewQuestionRepository(db), cache)
		cached := []models.Question{{ID: 1, Subcategory: "rebar", Active: true}, {ID: 2, Subcategory: "rebar", Active: true}}
		cache.On("GetPool", ctx, subcategories).Return(cached, true, nil).Once()

		pool, err := repo.ListActive(ctx, subcategories)

		require.NoError(t, err)
		assert.Equal(t, cached, pool)
		cache.AssertNotCalled(t, "SetPool", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("questions deactivated after caching are not served", func(t *testing.T) {
		retired := newTestDB(t)
		seedQuestions(t, retired, "rebar", 1, 3, true)
		cache := new(MockPoolCache)
		repo := NewCachedQuestionRepository(NewQuestionRepository(retired), cache)
		cached := []models.Question{
			{ID: 1, Subcategory: "rebar", Active: true},
			{ID: 2, Subcategory: "rebar", Active: true},
			{ID: 3, Subcategory: "rebar", Active: true},
		}
		cache.On("GetPool", ctx, subcategories).Return(cached, true, nil).Once()
		require.NoError(t, retired.Model(&models.Question{}).Where("id = ?", 2).Update("active", false).Error)

		pool, err := repo.ListActive(ctx, subcategories)

		require.NoError(t, err)
		ids := []uint{}
		for _, q := range pool {
			ids = append(ids, q.ID)
		}
		assert.Equal(t, []uint{1, 3}, ids)
		cache.AssertExpectations(t)
	})

	t.Run("cache failures fall back to the database", func(t *testing.T) {
		cache := new(MockPoolCache)
		repo := NewCachedQuestionRepository(NewQuestionRepository(db), cache)
		cache.On("GetPool", ctx, subcategories).Return(nil, false, errors.New("connection refused")).Once()
		cache.On("SetPool", ctx, subcategories, mock.Anything).Return(errors.New("connection refused")).Once()

		pool, err := repo.ListActive(ctx, subcategories)

		require.NoError(t, err)
		assert.Len(t, pool, 2)
	})
}
