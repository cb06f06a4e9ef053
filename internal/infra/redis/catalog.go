package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"battle-room-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches a field's question pool from a backing store.
type CatalogLoader interface {
	LoadQuestions(ctx context.Context, fieldSlug string) ([]domain.QuizQuestion, error)
}

// CatalogRepository caches per-field question pools in Redis and falls back to
// a loader on cache miss. Pools are stored whole as JSON:
// SET catalog:{fieldSlug}:questions {json} EX ttl
// The full records (keys included) stay server-side; nothing here is
// client-facing.
type CatalogRepository struct {
	client *redis.Client
	loader CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) GetQuestions(ctx context.Context, fieldSlug string, count int) ([]domain.QuizQuestion, error) {
	key := r.poolKey(fieldSlug)

	if pool, ok := r.cached(ctx, key); ok {
		return checkPool(pool, count)
	}

	result, err, _ := r.sf.Do(fieldSlug, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pool, ok := r.cached(ctx, key); ok {
			return pool, nil
		}

		pool, err := r.loader.LoadQuestions(ctx, fieldSlug)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(pool)
		if err != nil {
			return nil, fmt.Errorf("marshal question pool: %w", err)
		}
		_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return checkPool(result.([]domain.QuizQuestion), count)
}

func (r *CatalogRepository) cached(ctx context.Context, key string) ([]domain.QuizQuestion, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var pool []domain.QuizQuestion
	if err := json.Unmarshal(data, &pool); err != nil {
		return nil, false
	}
	return pool, true
}

func checkPool(pool []domain.QuizQuestion, count int) ([]domain.QuizQuestion, error) {
	if len(pool) < count {
		return nil, domain.ErrInsufficientContent
	}
	out := make([]domain.QuizQuestion, len(pool))
	copy(out, pool)
	return out, nil
}

func (r *CatalogRepository) poolKey(fieldSlug string) string {
	return "catalog:" + fieldSlug + ":questions"
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
