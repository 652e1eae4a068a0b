package services

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillgauge/models"
)

var constructionQuotas = map[string]float64{
	"rebar":    25,
	"concrete": 25,
	"formwork": 20,
	"element":  20,
	"theory":   10,
}

func constructionPool() []models.Question {
	var pool []models.Question
	pool = append(pool, makeQuestions(100, 12, "rebar")...)
	pool = append(pool, makeQuestions(200, 12, "concrete")...)
	pool = append(pool, makeQuestions(300, 12, "formwork")...)
	pool = append(pool, makeQuestions(400, 12, "element")...)
	pool = append(pool, makeQuestions(500, 12, "theory")...)
	return pool
}

func countBySubcategory(ids []uint, pool []models.Question) map[string]int {
	bySubcategory := make(map[uint]string, len(pool))
	for _, q := range pool {
		bySubcategory[q.ID] = q.Subcategory
	}
	counts := make(map[string]int)
	for _, id := range ids {
		counts[bySubcategory[id]]++
	}
	return counts
}

func TestTargetCounts(t *testing.T) {
	t.Run("construction quotas over 20 questions", func(t *testing.T) {
		counts := TargetCounts(20, constructionQuotas)
		assert.Equal(t, map[string]int{"rebar": 5, "concrete": 5, "formwork": 4, "element": 4, "theory": 2}, counts)
	})

	t.Run("positive rounding drift goes to the largest quota", func(t *testing.T) {
		// 10 * 1/3 rounds to 3 for each, leaving one question for the first by name.
		counts := TargetCounts(10, map[string]float64{"a": 1, "b": 1, "c": 1})
		assert.Equal(t, map[string]int{"a": 4, "b": 3, "c": 3}, counts)
	})

	t.Run("negative rounding drift is taken from the largest quota", func(t *testing.T) {
		// 5 * 0.5 rounds up twice to 3 + 3 = 6.
		counts := TargetCounts(5, map[string]float64{"x": 50, "y": 50})
		assert.Equal(t, 5, counts["x"]+counts["y"])
		assert.Equal(t, 2, counts["x"])
		assert.Equal(t, 3, counts["y"])
	})

	t.Run("percentages are normalized by their sum", func(t *testing.T) {
		counts := TargetCounts(10, map[string]float64{"rebar": 30, "concrete": 20})
		assert.Equal(t, map[string]int{"rebar": 6, "concrete": 4}, counts)
	})

	t.Run("non-positive quotas are dropped", func(t *testing.T) {
		counts := TargetCounts(4, map[string]float64{"rebar": 100, "concrete": 0, "theory": -5})
		assert.Equal(t, map[string]int{"rebar": 4}, counts)
	})

	t.Run("no quotas or no questions", func(t *testing.T) {
		assert.Empty(t, TargetCounts(10, nil))
		assert.Empty(t, TargetCounts(0, constructionQuotas))
	})
}

func TestQuotaSampler_Sample(t *testing.T) {
	t.Run("draws exact quota counts without duplicates", func(t *testing.T) {
		sampler := NewQuotaSampler(rand.New(rand.NewSource(42)), false)
		pool := constructionPool()
		round := quotaRound(1, 20, constructionQuotas)

		ids, shortfalls := sampler.Sample(round, pool)

		require.Len(t, ids, 20)
		assert.Empty(t, shortfalls)
		seen := make(map[uint]bool)
		for _, id := range ids {
			assert.False(t, seen[id], "duplicate question %d", id)
			seen[id] = true
		}
		assert.Equal(t, map[string]int{"rebar": 5, "concrete": 5, "formwork": 4, "element": 4, "theory": 2}, countBySubcategory(ids, pool))
	})

	t.Run("same seed gives the same slate", func(t *testing.T) {
		pool := constructionPool()
		round := quotaRound(1, 20, constructionQuotas)
		first, _ := NewQuotaSampler(rand.New(rand.NewSource(7)), false).Sample(round, pool)
		second, _ := NewQuotaSampler(rand.New(rand.NewSource(7)), false).Sample(round, pool)
		assert.Equal(t, first, second)
	})

	t.Run("small pool is drawn fully and reported", func(t *testing.T) {
		sampler := NewQuotaSampler(rand.New(rand.NewSource(1)), false)
		pool := append(makeQuestions(1, 10, "rebar"), makeQuestions(50, 2, "theory")...)
		round := quotaRound(2, 10, map[string]float64{"rebar": 50, "theory": 50})

		ids, shortfalls := sampler.Sample(round, pool)

		assert.Len(t, ids, 7)
		require.Len(t, shortfalls, 1)
		assert.Equal(t, models.PoolShortfall{Subcategory: "theory", Requested: 5, Available: 2}, shortfalls[0])
	})

	t.Run("shortfall is redistributed when enabled", func(t *testing.T) {
		sampler := NewQuotaSampler(rand.New(rand.NewSource(1)), true)
		pool := append(makeQuestions(1, 10, "rebar"), makeQuestions(50, 2, "theory")...)
		round := quotaRound(2, 10, map[string]float64{"rebar": 50, "theory": 50})

		ids, shortfalls := sampler.Sample(round, pool)

		assert.Len(t, ids, 10)
		require.Len(t, shortfalls, 1)
		assert.Equal(t, 3, shortfalls[0].Redistributed)
		counts := countBySubcategory(ids, pool)
		assert.Equal(t, 8, counts["rebar"])
		assert.Equal(t, 2, counts["theory"])
	})

	t.Run("empty pool yields no questions and warnings", func(t *testing.T) {
		sampler := NewQuotaSampler(rand.New(rand.NewSource(1)), false)
		round := quotaRound(3, 20, constructionQuotas)

		ids, shortfalls := sampler.Sample(round, nil)

		assert.Empty(t, ids)
		assert.Len(t, shortfalls, 5)
	})

	t.Run("ignores unquoted subcategories, inactive questions and duplicates", func(t *testing.T) {
		sampler := NewQuotaSampler(rand.New(rand.NewSource(3)), false)
		pool := makeQuestions(1, 3, "rebar")
		pool = append(pool, pool[0]) // duplicate
		inactive := makeQuestions(10, 1, "rebar")[0]
		inactive.Active = false
		pool = append(pool, inactive)
		pool = append(pool, makeQuestions(20, 5, "safety")...)
		round := quotaRound(4, 5, map[string]float64{"rebar": 100})

		ids, shortfalls := sampler.Sample(round, pool)

		assert.ElementsMatch(t, []uint{1, 2, 3}, ids)
		require.Len(t, shortfalls, 1)
		assert.Equal(t, 3, shortfalls[0].Available)
	})
}
