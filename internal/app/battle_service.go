package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"battle-room-service/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoomRepository is the registry's storage contract: the single gateway to
// live rooms. Implementations must be safe for concurrent use; per-room state
// is serialized by the rooms themselves.
type RoomRepository interface {
	Insert(room *Room) error
	Get(roomID string) (*Room, bool)
	GetByInvite(inviteToken string) (*Room, bool)
	Delete(roomID string)
	All() []*Room
}

// BattleService contains the battle room use cases: room lifecycle commands
// coming in from connections, and the periodic registry sweep.
type BattleService struct {
	rooms     RoomRepository
	sequencer *Sequencer
	settler   *Settler
	timing    TimingConfig
	scoring   ScoringConfig
	rewards   RewardTable
	logger    *zap.Logger
	now       func() time.Time
}

func NewBattleService(rooms RoomRepository, catalog CatalogRepository, settler *Settler, timing TimingConfig, scoring ScoringConfig, rewards RewardTable, logger *zap.Logger) *BattleService {
	return &BattleService{
		rooms:     rooms,
		sequencer: NewSequencer(catalog, timing.Questions),
		settler:   settler,
		timing:    timing,
		scoring:   scoring,
		rewards:   rewards,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateRoom builds a new waiting room and admits the creator as host.
func (s *BattleService) CreateRoom(ctx context.Context, host JoinInfo, settings domain.RoomSettings, outbox chan domain.ServerEvent) (*Room, string, error) {
	if err := settings.Validate(); err != nil {
		return nil, "", err
	}

	var token string
	for {
		t, err := generateInviteToken()
		if err != nil {
			return nil, "", fmt.Errorf("generate invite token: %w", err)
		}
		if _, taken := s.rooms.GetByInvite(t); !taken {
			token = t
			break
		}
	}

	room := newRoom(uuid.NewString(), token, settings, s.timing, s.scoring, s.rewards, s.logger, s.now, func(final domain.FinalResult) {
		s.settler.SettleRoom(context.Background(), final)
	})
	if err := s.rooms.Insert(room); err != nil {
		return nil, "", err
	}

	participantID, err := room.Join(host, outbox)
	if err != nil {
		s.rooms.Delete(room.ID)
		return nil, "", err
	}
	s.logger.Info("room created",
		zap.String("roomId", room.ID),
		zap.String("inviteToken", token),
		zap.String("fieldSlug", settings.FieldSlug))
	return room, participantID, nil
}

// JoinRoom admits a participant into the room behind an invite token.
func (s *BattleService) JoinRoom(_ context.Context, inviteToken string, info JoinInfo, outbox chan domain.ServerEvent) (*Room, string, error) {
	room, ok := s.rooms.GetByInvite(inviteToken)
	if !ok {
		return nil, "", domain.ErrRoomNotFound
	}
	participantID, err := room.Join(info, outbox)
	if err != nil {
		return nil, "", err
	}
	return room, participantID, nil
}

// ResumeRoom re-attaches a disconnected participant.
func (s *BattleService) ResumeRoom(_ context.Context, roomID, participantID string, outbox chan domain.ServerEvent) (*Room, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if err := room.Resume(participantID, outbox); err != nil {
		return nil, err
	}
	return room, nil
}

// UpdateSettings forwards a host settings patch to the room.
func (s *BattleService) UpdateSettings(_ context.Context, roomID, participantID string, patch domain.SettingsPatch) error {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return room.UpdateSettings(participantID, patch)
}

// Start draws the question sequence and begins the countdown. If the catalog
// cannot supply enough questions the room stays in waiting.
func (s *BattleService) Start(ctx context.Context, roomID, participantID string) error {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	settings, err := room.EnsureStartable(participantID)
	if err != nil {
		return err
	}
	sequence, err := s.sequencer.BuildSequence(ctx, settings.FieldSlug)
	if err != nil {
		return err
	}
	return room.Start(participantID, sequence)
}

// SubmitAnswer scores a submission for the room's open question.
func (s *BattleService) SubmitAnswer(_ context.Context, roomID, participantID string, quizIndex int, raw domain.RawAnswer) error {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return room.SubmitAnswer(participantID, quizIndex, raw)
}

// Leave handles an explicit leave command.
func (s *BattleService) Leave(_ context.Context, roomID, participantID string) error {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return room.Leave(participantID)
}

// Disconnect handles a channel-observed connection drop.
func (s *BattleService) Disconnect(roomID, participantID string) {
	if room, ok := s.rooms.Get(roomID); ok {
		room.Disconnect(participantID)
	}
}

// RemoveExpiredRooms sweeps the registry, invalidating stale waiting rooms and
// collecting terminal rooms whose retention window has passed.
func (s *BattleService) RemoveExpiredRooms() int {
	now := s.now()
	removed := 0
	for _, room := range s.rooms.All() {
		if room.ShouldRemove(now) {
			room.Close()
			s.rooms.Delete(room.ID)
			removed++
			s.logger.Info("room garbage-collected", zap.String("roomId", room.ID))
		}
	}
	return removed
}

const inviteTokenCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateInviteToken() (string, error) {
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(inviteTokenCharset))))
		if err != nil {
			return "", err
		}
		code[i] = inviteTokenCharset[n.Int64()]
	}
	return string(code), nil
}
