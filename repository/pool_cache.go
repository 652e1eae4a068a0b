package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"skillgauge/models"
)

// PoolCache stores active question pools keyed by the set of subcategories they cover.
type PoolCache interface {
	GetPool(ctx context.Context, subcategories []string) ([]models.Question, bool, error)
	SetPool(ctx context.Context, subcategories []string, pool []models.Question) error
}

// cachedQuestion keeps the answer key, which models.Question hides from JSON.
type cachedQuestion struct {
	ID             uint     `json:"id"`
	Text           string   `json:"text"`
	Choices        []string `json:"choices"`
	CorrectChoices []int    `json:"correct_choices"`
	Subcategory    string   `json:"subcategory"`
}

// RedisPoolCache is a PoolCache backed by Redis string keys with a TTL.
type RedisPoolCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisPoolCache initializes a Redis client for pool caching.
func NewRedisPoolCache(addr, password string, db int, ttl time.Duration) *RedisPoolCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPoolCache{rdb: rdb, ttl: ttl}
}

// Ping checks the connection.
func (c *RedisPoolCache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Close releases the underlying connections.
func (c *RedisPoolCache) Close() error { return c.rdb.Close() }

func poolKey(subcategories []string) string {
	sorted := append([]string(nil), subcategories...)
	sort.Strings(sorted)
	return fmt.Sprintf("pool:%s", strings.Join(sorted, ","))
}

func (c *RedisPoolCache) GetPool(ctx context.Context, subcategories []string) ([]models.Question, bool, error) {
	raw, err := c.rdb.Get(ctx, poolKey(subcategories)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var cached []cachedQuestion
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, err
	}
	pool := make([]models.Question, 0, len(cached))
	for _, q := range cached {
		pool = append(pool, models.Question{
			ID:             q.ID,
			Text:           q.Text,
			Choices:        q.Choices,
			CorrectChoices: q.CorrectChoices,
			Subcategory:    q.Subcategory,
			Active:         true,
		})
	}
	return pool, true, nil
}

func (c *RedisPoolCache) SetPool(ctx context.Context, subcategories []string, pool []models.Question) error {
	cached := make([]cachedQuestion, 0, len(pool))
	for _, q := range pool {
		cached = append(cached, cachedQuestion{
			ID:             q.ID,
			Text:           q.Text,
			Choices:        q.Choices,
			CorrectChoices: q.CorrectChoices,
			Subcategory:    q.Subcategory,
		})
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, poolKey(subcategories), data, c.ttl).Err()
}

type cachedQuestionRepository struct {
	QuestionRepository
	cache PoolCache
}

// NewCachedQuestionRepository serves ListActive from cache when possible.
// Cache failures are logged and fall through to the underlying repository.
func NewCachedQuestionRepository(inner QuestionRepository, cache PoolCache) QuestionRepository {
	return &cachedQuestionRepository{QuestionRepository: inner, cache: cache}
}

func (r *cachedQuestionRepository) ListActive(ctx context.Context, subcategories []string) ([]models.Question, error) {
	pool, hit, err := r.cache.GetPool(ctx, subcategories)
	if err != nil {
		log.Printf("WARN: [PoolCache] Cache read failed for %v: %v. Falling back to database.", subcategories, err)
	} else if hit {
		fresh, err := r.dropDeactivated(ctx, pool)
		if err == nil {
			return fresh, nil
		}
		log.Printf("WARN: [PoolCache] Active check of cached pool %v failed: %v. Falling back to database.", subcategories, err)
	}

	pool, err = r.QuestionRepository.ListActive(ctx, subcategories)
	if err != nil {
		return nil, err
	}
	if setErr := r.cache.SetPool(ctx, subcategories, pool); setErr != nil {
		log.Printf("WARN: [PoolCache] Cache write failed for %v: %v", subcategories, setErr)
	}
	return pool, nil
}

// dropDeactivated removes cached questions that were deactivated after the pool was cached.
func (r *cachedQuestionRepository) dropDeactivated(ctx context.Context, pool []models.Question) ([]models.Question, error) {
	ids := make([]uint, 0, len(pool))
	for _, q := range pool {
		ids = append(ids, q.ID)
	}
	active, err := r.QuestionRepository.ActiveIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	fresh := make([]models.Question, 0, len(pool))
	for _, q := range pool {
		if active[q.ID] {
			fresh = append(fresh, q)
		}
	}
	return fresh, nil
}
