package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger delivers settlement events to the external ledger service through a
// Redis stream. Delivery is at-least-once; a SETNX marker per idempotency key
// keeps repeats out of the stream on our side as well.
type Ledger struct {
	client *redis.Client
	stream string
	ttl    time.Duration
}

func NewLedger(client *redis.Client, ttl time.Duration) *Ledger {
	return &Ledger{
		client: client,
		stream: "ledger:settlements",
		ttl:    ttl,
	}
}

func (l *Ledger) Settle(ctx context.Context, userID, rewardType string, amount int, idempotencyKey string) error {
	fresh, err := l.client.SetNX(ctx, "ledger:settled:"+idempotencyKey, "1", l.ttl).Result()
	if err != nil {
		return fmt.Errorf("mark settlement: %w", err)
	}
	if !fresh {
		return nil
	}
	err = l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		Values: map[string]interface{}{
			"userId":         userID,
			"rewardType":     rewardType,
			"amount":         amount,
			"idempotencyKey": idempotencyKey,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("emit settlement: %w", err)
	}
	return nil
}

// Stream exposes the stream key for consumers and tests.
func (l *Ledger) Stream() string {
	return l.stream
}
