package app

import (
	"sort"
	"time"

	"battle-room-service/internal/domain"
)

// ScoringConfig tunes the reward curve. Correct answers earn BasePoints with a
// linear decay down to FloorPoints across the question budget; wrong or missing
// answers get PenaltyDelta regardless of speed. The curve is monotonic
// non-increasing in elapsed time and bounded on both ends.
type ScoringConfig struct {
	BasePoints   int
	FloorPoints  int
	PenaltyDelta int
}

// DefaultScoringConfig mirrors the production tuning: 100 points decaying to a
// floor of 50, no deduction for wrong answers.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{BasePoints: 100, FloorPoints: 50, PenaltyDelta: 0}
}

// Score evaluates a submission against the question's private answer key and
// returns correctness plus the score delta to apply.
func (c ScoringConfig) Score(q domain.QuizQuestion, raw domain.RawAnswer, elapsed, limit time.Duration) (bool, int) {
	if !answerMatchesKey(q, raw) {
		return false, c.PenaltyDelta
	}
	return true, c.decayed(elapsed, limit)
}

func (c ScoringConfig) decayed(elapsed, limit time.Duration) int {
	if elapsed < 0 {
		elapsed = 0
	}
	if limit <= 0 || elapsed >= limit {
		return c.FloorPoints
	}
	span := int64(c.BasePoints - c.FloorPoints)
	cut := span * int64(elapsed) / int64(limit)
	return c.BasePoints - int(cut)
}

// answerMatchesKey does a structural comparison against the answer key. For
// matching questions the submitted pairs must equal the key as a set; order is
// irrelevant.
func answerMatchesKey(q domain.QuizQuestion, raw domain.RawAnswer) bool {
	switch q.Type {
	case domain.QuestionMatching:
		return pairSetsEqual(q.AnswerPairs, raw.Pairs)
	default:
		return raw.OptionID != "" && raw.OptionID == q.AnswerOptionID
	}
}

func pairSetsEqual(key, got []domain.MatchPair) bool {
	if len(key) != len(got) {
		return false
	}
	want := make(map[domain.MatchPair]int, len(key))
	for _, p := range key {
		want[p]++
	}
	for _, p := range got {
		if want[p] == 0 {
			return false
		}
		want[p]--
	}
	return true
}

// rankParticipants folds participant states into the total-order scoreboard.
// Sort order: score descending, then lower cumulative answer latency, then
// earlier join time. Equal scores share a rank number and the next distinct
// score skips past the tie (1, 1, 3).
func rankParticipants(parts []*participantState) []domain.RankedParticipant {
	order := make([]*participantState, len(parts))
	copy(order, parts)
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		li, lj := order[i].totalElapsedMs(), order[j].totalElapsedMs()
		if li != lj {
			return li < lj
		}
		return order[i].joinedAt.Before(order[j].joinedAt)
	})

	entries := make([]domain.RankedParticipant, 0, len(order))
	for i, p := range order {
		rank := i + 1
		if i > 0 && p.score == order[i-1].score {
			rank = entries[i-1].Rank
		}
		entries = append(entries, domain.RankedParticipant{
			ParticipantID:  p.id,
			DisplayName:    p.displayName,
			Rank:           rank,
			Score:          p.score,
			TotalElapsedMs: p.totalElapsedMs(),
		})
	}
	return entries
}
