package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"battle-room-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches a field's question pool from a backing store
// (e.g., the catalog database).
type CatalogLoader interface {
	LoadQuestions(ctx context.Context, fieldSlug string) ([]domain.QuizQuestion, error)
}

// CatalogRepository caches question pools per field with TTL to avoid
// repeated catalog reads at every battle start.
type CatalogRepository struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedPool
}

type cachedPool struct {
	questions []domain.QuizQuestion
	expiresAt time.Time
}

func NewCatalogRepository(loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPool),
	}
}

func (r *CatalogRepository) GetQuestions(ctx context.Context, fieldSlug string, count int) ([]domain.QuizQuestion, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[fieldSlug]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return takePool(entry.questions, count)
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(fieldSlug, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[fieldSlug]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.questions, nil
		}
		r.mu.RUnlock()

		questions, err := r.loader.LoadQuestions(ctx, fieldSlug)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[fieldSlug] = cachedPool{
			questions: questions,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return takePool(result.([]domain.QuizQuestion), count)
}

// takePool copies the cached pool so callers can shuffle freely; a pool
// smaller than the requested draw is a content failure.
func takePool(pool []domain.QuizQuestion, count int) ([]domain.QuizQuestion, error) {
	if len(pool) < count {
		return nil, domain.ErrInsufficientContent
	}
	out := make([]domain.QuizQuestion, len(pool))
	copy(out, pool)
	return out, nil
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticCatalogLoader is a simple loader backed by an in-memory map (useful
// for tests/demos and for running without a database).
type StaticCatalogLoader struct {
	fields map[string][]domain.QuizQuestion
}

func NewStaticCatalogLoader(fields map[string][]domain.QuizQuestion) *StaticCatalogLoader {
	return &StaticCatalogLoader{fields: fields}
}

func (l *StaticCatalogLoader) LoadQuestions(_ context.Context, fieldSlug string) ([]domain.QuizQuestion, error) {
	if questions, ok := l.fields[fieldSlug]; ok {
		return questions, nil
	}
	return nil, domain.ErrInsufficientContent
}
