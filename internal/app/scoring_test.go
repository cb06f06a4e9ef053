package app

import (
	"reflect"
	"testing"
	"time"

	"battle-room-service/internal/domain"
)

func choiceQuestion() domain.QuizQuestion {
	return domain.QuizQuestion{
		ID:   "q1",
		Type: domain.QuestionChoice,
		Options: []domain.Option{
			{ID: "o1", Text: "Wrong"},
			{ID: "o2", Text: "Right"},
		},
		AnswerOptionID: "o2",
	}
}

func matchingQuestion() domain.QuizQuestion {
	return domain.QuizQuestion{
		ID:   "q2",
		Type: domain.QuestionMatching,
		AnswerPairs: []domain.MatchPair{
			{Left: "France", Right: "Paris"},
			{Left: "Spain", Right: "Madrid"},
		},
	}
}

func TestScoreDecayMonotonicAndBounded(t *testing.T) {
	cfg := DefaultScoringConfig()
	limit := 10 * time.Second

	prev := cfg.BasePoints + 1
	for elapsed := time.Duration(0); elapsed <= limit+time.Second; elapsed += 500 * time.Millisecond {
		correct, delta := cfg.Score(choiceQuestion(), domain.RawAnswer{OptionID: "o2"}, elapsed, limit)
		if !correct {
			t.Fatalf("expected correct at elapsed=%v", elapsed)
		}
		if delta > prev {
			t.Fatalf("delta increased with elapsed time: %d -> %d at %v", prev, delta, elapsed)
		}
		if delta < cfg.FloorPoints || delta > cfg.BasePoints {
			t.Fatalf("delta %d outside [%d,%d]", delta, cfg.FloorPoints, cfg.BasePoints)
		}
		prev = delta
	}

	_, atZero := cfg.Score(choiceQuestion(), domain.RawAnswer{OptionID: "o2"}, 0, limit)
	if atZero != cfg.BasePoints {
		t.Fatalf("expected full base at zero elapsed, got %d", atZero)
	}
	_, atLimit := cfg.Score(choiceQuestion(), domain.RawAnswer{OptionID: "o2"}, limit, limit)
	if atLimit != cfg.FloorPoints {
		t.Fatalf("expected floor at the limit, got %d", atLimit)
	}
}

func TestFasterCorrectAnswerScoresAtLeastAsMuch(t *testing.T) {
	cfg := DefaultScoringConfig()
	limit := 10 * time.Second

	_, fast := cfg.Score(choiceQuestion(), domain.RawAnswer{OptionID: "o2"}, time.Second, limit)
	_, slow := cfg.Score(choiceQuestion(), domain.RawAnswer{OptionID: "o2"}, 8*time.Second, limit)
	if fast < slow {
		t.Fatalf("fast answer scored %d, slow scored %d", fast, slow)
	}
}

func TestIncorrectAnswerGetsFixedPenalty(t *testing.T) {
	cfg := DefaultScoringConfig()
	limit := 10 * time.Second

	for _, elapsed := range []time.Duration{0, time.Second, 9 * time.Second} {
		correct, delta := cfg.Score(choiceQuestion(), domain.RawAnswer{OptionID: "o1"}, elapsed, limit)
		if correct {
			t.Fatalf("expected incorrect at elapsed=%v", elapsed)
		}
		if delta != cfg.PenaltyDelta {
			t.Fatalf("expected penalty %d regardless of speed, got %d", cfg.PenaltyDelta, delta)
		}
	}
}

func TestMatchingAnswerIsSetEquality(t *testing.T) {
	cfg := DefaultScoringConfig()
	limit := 10 * time.Second

	// Same pairs, reversed order: correct.
	correct, _ := cfg.Score(matchingQuestion(), domain.RawAnswer{Pairs: []domain.MatchPair{
		{Left: "Spain", Right: "Madrid"},
		{Left: "France", Right: "Paris"},
	}}, time.Second, limit)
	if !correct {
		t.Fatalf("expected order-insensitive pair match")
	}

	// Crossed pairing: incorrect.
	correct, _ = cfg.Score(matchingQuestion(), domain.RawAnswer{Pairs: []domain.MatchPair{
		{Left: "France", Right: "Madrid"},
		{Left: "Spain", Right: "Paris"},
	}}, time.Second, limit)
	if correct {
		t.Fatalf("expected crossed pairs to be incorrect")
	}

	// Missing pair: incorrect.
	correct, _ = cfg.Score(matchingQuestion(), domain.RawAnswer{Pairs: []domain.MatchPair{
		{Left: "France", Right: "Paris"},
	}}, time.Second, limit)
	if correct {
		t.Fatalf("expected incomplete pairs to be incorrect")
	}
}

func rankedFixture() []*participantState {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*participantState{
		{
			id: "p-a", displayName: "Alice", score: 120, joinedAt: base,
			answers: map[int]*domain.Answer{0: {ElapsedMs: 1200}},
		},
		{
			id: "p-b", displayName: "Bob", score: 120, joinedAt: base.Add(time.Second),
			answers: map[int]*domain.Answer{0: {ElapsedMs: 3400}},
		},
		{
			id: "p-c", displayName: "Cara", score: 90, joinedAt: base.Add(2 * time.Second),
			answers: map[int]*domain.Answer{0: {ElapsedMs: 800}},
		},
	}
}

func TestRankingSharedRanksSkipPastTies(t *testing.T) {
	ranked := rankParticipants(rankedFixture())

	if ranked[0].ParticipantID != "p-a" || ranked[0].Rank != 1 {
		t.Fatalf("expected Alice first at rank 1, got %+v", ranked[0])
	}
	if ranked[1].ParticipantID != "p-b" || ranked[1].Rank != 1 {
		t.Fatalf("expected Bob second at shared rank 1, got %+v", ranked[1])
	}
	if ranked[2].ParticipantID != "p-c" || ranked[2].Rank != 3 {
		t.Fatalf("expected Cara at rank 3 (not 2), got %+v", ranked[2])
	}
}

func TestRankingTieBreakByLatencyThenJoinTime(t *testing.T) {
	parts := rankedFixture()
	// Equalize latency; Alice joined earlier so she must stay ahead.
	parts[1].answers[0].ElapsedMs = 1200
	ranked := rankParticipants(parts)
	if ranked[0].ParticipantID != "p-a" || ranked[1].ParticipantID != "p-b" {
		t.Fatalf("expected joinedAt to break the full tie, got %+v", ranked)
	}

	// Timed-out entries carry no latency.
	parts[0].answers[1] = &domain.Answer{ElapsedMs: 9999, TimedOut: true}
	if got := parts[0].totalElapsedMs(); got != 1200 {
		t.Fatalf("expected timed-out entries excluded from latency, got %d", got)
	}
}

func TestRankingIsDeterministic(t *testing.T) {
	parts := rankedFixture()
	first := rankParticipants(parts)
	second := rankParticipants(parts)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("ranking not reproducible:\n%+v\n%+v", first, second)
	}
}
