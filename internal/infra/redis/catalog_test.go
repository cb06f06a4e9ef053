package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"battle-room-service/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

type countingLoader struct {
	mu    sync.Mutex
	calls int
	pool  []domain.QuizQuestion
}

func (l *countingLoader) LoadQuestions(_ context.Context, _ string) ([]domain.QuizQuestion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.pool, nil
}

func (l *countingLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func testPool(n int) []domain.QuizQuestion {
	pool := make([]domain.QuizQuestion, n)
	for i := range pool {
		pool[i] = domain.QuizQuestion{
			ID:             string(rune('a' + i)),
			Type:           domain.QuestionChoice,
			AnswerOptionID: "o1",
		}
	}
	return pool
}

func TestCatalogCachesPoolInRedis(t *testing.T) {
	mr, client := testClient(t)
	loader := &countingLoader{pool: testPool(5)}
	repo := NewCatalogRepository(client, loader, time.Minute)

	for i := 0; i < 3; i++ {
		questions, err := repo.GetQuestions(context.Background(), "math", 5)
		if err != nil {
			t.Fatalf("get questions: %v", err)
		}
		if len(questions) != 5 {
			t.Fatalf("expected 5 questions, got %d", len(questions))
		}
	}
	if got := loader.callCount(); got != 1 {
		t.Fatalf("expected a single loader call, got %d", got)
	}
	if !mr.Exists("catalog:math:questions") {
		t.Fatalf("pool not cached under the catalog key")
	}
}

func TestCatalogCacheIsSharedAcrossRepositories(t *testing.T) {
	_, client := testClient(t)
	first := &countingLoader{pool: testPool(5)}
	if _, err := NewCatalogRepository(client, first, time.Minute).GetQuestions(context.Background(), "math", 5); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	second := &countingLoader{pool: testPool(5)}
	if _, err := NewCatalogRepository(client, second, time.Minute).GetQuestions(context.Background(), "math", 5); err != nil {
		t.Fatalf("read through second repo: %v", err)
	}
	if got := second.callCount(); got != 0 {
		t.Fatalf("expected the redis cache to serve the second repo, loader called %d times", got)
	}
}

func TestCatalogExpiryTriggersReload(t *testing.T) {
	mr, client := testClient(t)
	loader := &countingLoader{pool: testPool(5)}
	repo := NewCatalogRepository(client, loader, time.Minute)

	if _, err := repo.GetQuestions(context.Background(), "math", 5); err != nil {
		t.Fatalf("get questions: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := repo.GetQuestions(context.Background(), "math", 5); err != nil {
		t.Fatalf("get questions after expiry: %v", err)
	}
	if got := loader.callCount(); got != 2 {
		t.Fatalf("expected reload after TTL, got %d calls", got)
	}
}

func TestCatalogInsufficientPool(t *testing.T) {
	_, client := testClient(t)
	loader := &countingLoader{pool: testPool(2)}
	repo := NewCatalogRepository(client, loader, time.Minute)

	_, err := repo.GetQuestions(context.Background(), "math", 5)
	if !errors.Is(err, domain.ErrInsufficientContent) {
		t.Fatalf("expected ErrInsufficientContent, got %v", err)
	}
}
