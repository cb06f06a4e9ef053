package redis

import (
	"context"
	"testing"
	"time"
)

func TestLedgerEmitsToStreamOnce(t *testing.T) {
	_, client := testClient(t)
	ledger := NewLedger(client, time.Hour)
	ctx := context.Background()

	if err := ledger.Settle(ctx, "u1", "diamond", 30, "room-1:p-1"); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := ledger.Settle(ctx, "u1", "diamond", 30, "room-1:p-1"); err != nil {
		t.Fatalf("repeat settle: %v", err)
	}
	if err := ledger.Settle(ctx, "u2", "diamond", 20, "room-1:p-2"); err != nil {
		t.Fatalf("settle second: %v", err)
	}

	count, err := client.XLen(ctx, ledger.Stream()).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 stream entries, got %d", count)
	}

	entries, err := client.XRange(ctx, ledger.Stream(), "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if got := entries[0].Values["userId"]; got != "u1" {
		t.Fatalf("unexpected first entry user %v", got)
	}
	if got := entries[0].Values["idempotencyKey"]; got != "room-1:p-1" {
		t.Fatalf("unexpected idempotency key %v", got)
	}
	if got := entries[1].Values["userId"]; got != "u2" {
		t.Fatalf("unexpected second entry user %v", got)
	}
}
