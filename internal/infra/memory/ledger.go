package memory

import (
	"context"
	"sync"
)

// SettlementEvent is one recorded reward application.
type SettlementEvent struct {
	UserID         string
	RewardType     string
	Amount         int
	IdempotencyKey string
}

// Ledger is an in-memory app.LedgerService that deduplicates by idempotency
// key, mimicking the external ledger's at-least-once contract.
type Ledger struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	events []SettlementEvent
}

func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

func (l *Ledger) Settle(_ context.Context, userID, rewardType string, amount int, idempotencyKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.seen[idempotencyKey]; dup {
		return nil
	}
	l.seen[idempotencyKey] = struct{}{}
	l.events = append(l.events, SettlementEvent{
		UserID:         userID,
		RewardType:     rewardType,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	})
	return nil
}

// Events returns a copy of everything settled so far.
func (l *Ledger) Events() []SettlementEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SettlementEvent, len(l.events))
	copy(out, l.events)
	return out
}
