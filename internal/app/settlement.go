package app

import (
	"context"

	"battle-room-service/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// LedgerService durably applies reward events. Delivery is at-least-once;
// the idempotency key (roomId:participantId) lets the receiving side dedupe.
type LedgerService interface {
	Settle(ctx context.Context, userID, rewardType string, amount int, idempotencyKey string) error
}

// RewardTable maps final rank to reward amount. Ranks absent from the table
// earn nothing.
type RewardTable struct {
	RewardType string
	ByRank     map[int]int
}

// DefaultRewardTable pays the top three ranks in diamonds.
func DefaultRewardTable() RewardTable {
	return RewardTable{
		RewardType: "diamond",
		ByRank:     map[int]int{1: 30, 2: 20, 3: 10},
	}
}

func (t RewardTable) AmountFor(rank int) int {
	return t.ByRank[rank]
}

// Settler emits settlement events to the ledger when a room finishes. A room
// finishes once, so SettleRoom runs at most once per room; retries with
// backoff cover transient ledger failures within that single run.
type Settler struct {
	ledger LedgerService
	logger *zap.Logger
}

func NewSettler(ledger LedgerService, logger *zap.Logger) *Settler {
	return &Settler{ledger: ledger, logger: logger}
}

// SettleRoom emits one event per ranked participant. Guests carry no user id
// and are skipped; the ledger has no account to credit.
func (s *Settler) SettleRoom(ctx context.Context, final domain.FinalResult) {
	for _, reward := range final.Rewards {
		if reward.UserID == "" {
			continue
		}
		reward := reward
		key := final.RoomID + ":" + reward.ParticipantID
		op := func() error {
			return s.ledger.Settle(ctx, reward.UserID, reward.RewardType, reward.Amount, key)
		}
		if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)); err != nil {
			s.logger.Error("reward settlement failed",
				zap.String("roomId", final.RoomID),
				zap.String("participantId", reward.ParticipantID),
				zap.Error(err))
		}
	}
}
