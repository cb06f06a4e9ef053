package memory

import (
	"context"
	"testing"
	"time"

	"battle-room-service/internal/app"
	"battle-room-service/internal/domain"
	"go.uber.org/zap"
)

func storeFixture(t *testing.T) (*RoomStore, *app.BattleService) {
	t.Helper()
	store := NewRoomStore()
	loader := NewStaticCatalogLoader(map[string][]domain.QuizQuestion{})
	logger := zap.NewNop()
	service := app.NewBattleService(store, NewCatalogRepository(loader, time.Minute),
		app.NewSettler(NewLedger(), logger), app.DefaultTimingConfig(),
		app.DefaultScoringConfig(), app.DefaultRewardTable(), logger)
	return store, service
}

func TestRoomStoreLifecycle(t *testing.T) {
	store, service := storeFixture(t)
	settings := domain.RoomSettings{FieldSlug: "math", MaxPlayers: 4, TimeLimitType: domain.TimeLimitFast}

	room, _, err := service.CreateRoom(context.Background(), app.JoinInfo{DisplayName: "Alice"}, settings,
		make(chan domain.ServerEvent, 16))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	got, ok := store.Get(room.ID)
	if !ok || got.ID != room.ID {
		t.Fatalf("Get did not return the inserted room")
	}
	byInvite, ok := store.GetByInvite(room.InviteToken)
	if !ok || byInvite.ID != room.ID {
		t.Fatalf("GetByInvite did not resolve the invite token")
	}
	if all := store.All(); len(all) != 1 {
		t.Fatalf("expected 1 room, got %d", len(all))
	}

	store.Delete(room.ID)
	if _, ok := store.Get(room.ID); ok {
		t.Fatalf("room survived Delete")
	}
	if _, ok := store.GetByInvite(room.InviteToken); ok {
		t.Fatalf("invite mapping survived Delete")
	}
}

func TestRoomStoreRejectsDuplicateInvite(t *testing.T) {
	store, service := storeFixture(t)
	settings := domain.RoomSettings{FieldSlug: "math", MaxPlayers: 4, TimeLimitType: domain.TimeLimitFast}

	room, _, err := service.CreateRoom(context.Background(), app.JoinInfo{DisplayName: "Alice"}, settings,
		make(chan domain.ServerEvent, 16))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := store.Insert(room); err == nil {
		t.Fatalf("expected duplicate invite insert to fail")
	}
}
