package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"battle-room-service/internal/domain"
)

// CatalogRepository supplies the question pool for a field. Implementations
// may cache; the sequencer treats every call as a fresh external read.
type CatalogRepository interface {
	GetQuestions(ctx context.Context, fieldSlug string, count int) ([]domain.QuizQuestion, error)
}

// Sequencer draws the fixed question sequence for a room at battle start.
// Selection is randomized at draw time; the caller stores the result once so
// the sequence stays deterministic for the life of the room.
type Sequencer struct {
	catalog CatalogRepository
	count   int

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSequencer(catalog CatalogRepository, count int) *Sequencer {
	return &Sequencer{
		catalog: catalog,
		count:   count,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// BuildSequence returns an ordered list of exactly s.count questions for the
// field, or ErrInsufficientContent if the catalog cannot supply that many.
func (s *Sequencer) BuildSequence(ctx context.Context, fieldSlug string) ([]domain.QuizQuestion, error) {
	pool, err := s.catalog.GetQuestions(ctx, fieldSlug, s.count)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientContent) {
			return nil, err
		}
		return nil, fmt.Errorf("load question pool: %w", err)
	}
	if len(pool) < s.count {
		return nil, domain.ErrInsufficientContent
	}

	sequence := make([]domain.QuizQuestion, len(pool))
	copy(sequence, pool)
	s.mu.Lock()
	s.rnd.Shuffle(len(sequence), func(i, j int) {
		sequence[i], sequence[j] = sequence[j], sequence[i]
	})
	s.mu.Unlock()
	return sequence[:s.count], nil
}
