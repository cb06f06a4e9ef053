package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"battle-room-service/internal/app"
	"battle-room-service/internal/domain"
	"battle-room-service/internal/infra/memory"
	"go.uber.org/zap"
)

func serviceFixture(t *testing.T) (*app.BattleService, *memory.Ledger) {
	t.Helper()

	pool := make([]domain.QuizQuestion, 0, 4)
	for i := 0; i < 4; i++ {
		pool = append(pool, domain.QuizQuestion{
			ID:        fmt.Sprintf("geo-%d", i),
			FieldSlug: "geography",
			Type:      domain.QuestionChoice,
			Prompt:    fmt.Sprintf("Question %d", i),
			Options: []domain.Option{
				{ID: "o1", Text: "Right"},
				{ID: "o2", Text: "Wrong"},
			},
			AnswerOptionID: "o1",
		})
	}
	loader := memory.NewStaticCatalogLoader(map[string][]domain.QuizQuestion{"geography": pool})
	catalog := memory.NewCatalogRepository(loader, time.Minute)

	ledger := memory.NewLedger()
	logger := zap.NewNop()
	timing := app.TimingConfig{
		Countdown:  30 * time.Millisecond,
		Retention:  50 * time.Millisecond,
		WaitingTTL: time.Hour,
		Questions:  1,
		Budgets: map[domain.TimeLimitType]time.Duration{
			domain.TimeLimitFast: 150 * time.Millisecond,
		},
	}
	service := app.NewBattleService(memory.NewRoomStore(), catalog, app.NewSettler(ledger, logger),
		timing, app.DefaultScoringConfig(), app.DefaultRewardTable(), logger)
	return service, ledger
}

func battleSettings() domain.RoomSettings {
	return domain.RoomSettings{
		FieldSlug:     "geography",
		MaxPlayers:    4,
		TimeLimitType: domain.TimeLimitFast,
	}
}

func awaitStatus(t *testing.T, room *app.Room, want domain.RoomStatus, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for room.Snapshot().Status != want {
		if time.Now().After(deadline) {
			t.Fatalf("room never reached %s, at %s", want, room.Snapshot().Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCreateAndJoinByInvite(t *testing.T) {
	service, _ := serviceFixture(t)
	ctx := context.Background()

	room, hostID, err := service.CreateRoom(ctx, app.JoinInfo{UserID: "u-alice", DisplayName: "Alice"},
		battleSettings(), make(chan domain.ServerEvent, 16))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if room.InviteToken == "" {
		t.Fatalf("expected invite token")
	}

	joined, pidB, err := service.JoinRoom(ctx, room.InviteToken, app.JoinInfo{UserID: "u-bob", DisplayName: "Bob"},
		make(chan domain.ServerEvent, 16))
	if err != nil {
		t.Fatalf("join by invite: %v", err)
	}
	if joined.ID != room.ID {
		t.Fatalf("invite resolved to wrong room")
	}

	snap := room.Snapshot()
	if len(snap.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(snap.Participants))
	}
	for _, p := range snap.Participants {
		if p.ParticipantID == hostID && !p.IsHost {
			t.Fatalf("creator must be host")
		}
		if p.ParticipantID == pidB && p.IsHost {
			t.Fatalf("second joiner must not be host")
		}
	}

	if _, _, err := service.JoinRoom(ctx, "NOSUCH", app.JoinInfo{DisplayName: "Cara"}, make(chan domain.ServerEvent, 16)); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound for bogus invite, got %v", err)
	}
}

func TestFullBattleSettlesLedgerOnce(t *testing.T) {
	service, ledger := serviceFixture(t)
	ctx := context.Background()

	room, hostID, err := service.CreateRoom(ctx, app.JoinInfo{UserID: "u-alice", DisplayName: "Alice"},
		battleSettings(), make(chan domain.ServerEvent, 16))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	_, pidB, err := service.JoinRoom(ctx, room.InviteToken, app.JoinInfo{UserID: "u-bob", DisplayName: "Bob"},
		make(chan domain.ServerEvent, 16))
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := service.Start(ctx, room.ID, hostID); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitStatus(t, room, domain.RoomInProgress, time.Second)

	if err := service.SubmitAnswer(ctx, room.ID, hostID, 0, domain.RawAnswer{OptionID: "o1"}); err != nil {
		t.Fatalf("submit host: %v", err)
	}
	if err := service.SubmitAnswer(ctx, room.ID, pidB, 0, domain.RawAnswer{OptionID: "o2"}); err != nil {
		t.Fatalf("submit B: %v", err)
	}
	awaitStatus(t, room, domain.RoomFinished, time.Second)

	// Settlement runs off the room goroutine; wait for the ledger to catch up.
	deadline := time.Now().Add(time.Second)
	for len(ledger.Events()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 settlement events, got %d", len(ledger.Events()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	events := ledger.Events()
	if len(events) != 2 {
		t.Fatalf("expected exactly 2 settlement events, got %d", len(events))
	}
	byUser := make(map[string]memory.SettlementEvent)
	for _, ev := range events {
		if ev.RewardType != "diamond" {
			t.Fatalf("unexpected reward type %q", ev.RewardType)
		}
		if ev.IdempotencyKey == "" {
			t.Fatalf("settlement without idempotency key")
		}
		byUser[ev.UserID] = ev
	}
	if byUser["u-alice"].Amount != 30 || byUser["u-bob"].Amount != 20 {
		t.Fatalf("reward amounts off: %+v", byUser)
	}
}

func TestGuestIsSkippedAtSettlement(t *testing.T) {
	service, ledger := serviceFixture(t)
	ctx := context.Background()

	room, hostID, err := service.CreateRoom(ctx, app.JoinInfo{UserID: "u-alice", DisplayName: "Alice"},
		battleSettings(), make(chan domain.ServerEvent, 16))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	_, guestID, err := service.JoinRoom(ctx, room.InviteToken, app.JoinInfo{DisplayName: "Guest"},
		make(chan domain.ServerEvent, 16))
	if err != nil {
		t.Fatalf("join guest: %v", err)
	}

	if err := service.Start(ctx, room.ID, hostID); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitStatus(t, room, domain.RoomInProgress, time.Second)
	_ = service.SubmitAnswer(ctx, room.ID, hostID, 0, domain.RawAnswer{OptionID: "o1"})
	_ = service.SubmitAnswer(ctx, room.ID, guestID, 0, domain.RawAnswer{OptionID: "o1"})
	awaitStatus(t, room, domain.RoomFinished, time.Second)

	deadline := time.Now().Add(time.Second)
	for len(ledger.Events()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no settlement recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	events := ledger.Events()
	if len(events) != 1 || events[0].UserID != "u-alice" {
		t.Fatalf("expected a single settlement for the registered user, got %+v", events)
	}
}

func TestStartWithUnknownFieldKeepsRoomWaiting(t *testing.T) {
	service, _ := serviceFixture(t)
	ctx := context.Background()

	settings := battleSettings()
	settings.FieldSlug = "astrology"
	room, hostID, err := service.CreateRoom(ctx, app.JoinInfo{DisplayName: "Alice"}, settings,
		make(chan domain.ServerEvent, 16))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, _, err := service.JoinRoom(ctx, room.InviteToken, app.JoinInfo{DisplayName: "Bob"},
		make(chan domain.ServerEvent, 16)); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := service.Start(ctx, room.ID, hostID); !errors.Is(err, domain.ErrInsufficientContent) {
		t.Fatalf("expected ErrInsufficientContent, got %v", err)
	}
	if got := room.Snapshot().Status; got != domain.RoomWaiting {
		t.Fatalf("failed start must leave the room waiting, got %s", got)
	}
}

func TestRemoveExpiredRoomsCollectsFinishedRooms(t *testing.T) {
	service, _ := serviceFixture(t)
	ctx := context.Background()

	room, hostID, err := service.CreateRoom(ctx, app.JoinInfo{UserID: "u-alice", DisplayName: "Alice"},
		battleSettings(), make(chan domain.ServerEvent, 16))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	_, pidB, err := service.JoinRoom(ctx, room.InviteToken, app.JoinInfo{UserID: "u-bob", DisplayName: "Bob"},
		make(chan domain.ServerEvent, 16))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := service.Start(ctx, room.ID, hostID); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitStatus(t, room, domain.RoomInProgress, time.Second)
	_ = service.SubmitAnswer(ctx, room.ID, hostID, 0, domain.RawAnswer{OptionID: "o1"})
	_ = service.SubmitAnswer(ctx, room.ID, pidB, 0, domain.RawAnswer{OptionID: "o1"})
	awaitStatus(t, room, domain.RoomFinished, time.Second)

	if removed := service.RemoveExpiredRooms(); removed != 0 {
		t.Fatalf("room swept before retention elapsed")
	}

	time.Sleep(80 * time.Millisecond)
	if removed := service.RemoveExpiredRooms(); removed != 1 {
		t.Fatalf("expected 1 room collected, got %d", removed)
	}
	if err := service.SubmitAnswer(ctx, room.ID, hostID, 0, domain.RawAnswer{OptionID: "o1"}); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound after sweep, got %v", err)
	}
}
