package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"battle-room-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// RoomStore is a Redis-aware implementation of app.RoomRepository.
// Notes:
//   - Rooms stay in a local map; room state is owned by this process for the
//     room's entire lifetime (single-writer discipline).
//   - Redis holds liveness and invite-token markers, so an external router
//     could do sticky lookup by roomId or invite token across instances.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration

	mu       sync.RWMutex
	rooms    map[string]*app.Room
	byInvite map[string]string
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client:   client,
		ttl:      ttl,
		rooms:    make(map[string]*app.Room),
		byInvite: make(map[string]string),
	}
}

func (s *RoomStore) Insert(room *app.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byInvite[room.InviteToken]; exists {
		return fmt.Errorf("invite token %s already in use", room.InviteToken)
	}
	s.rooms[room.ID] = room
	s.byInvite[room.InviteToken] = room.ID
	// best-effort liveness and invite markers
	ctx := context.Background()
	_ = s.client.Set(ctx, s.roomKey(room.ID), "1", s.ttl).Err()
	_ = s.client.Set(ctx, s.inviteKey(room.InviteToken), room.ID, s.ttl).Err()
	return nil
}

func (s *RoomStore) Get(roomID string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

func (s *RoomStore) GetByInvite(inviteToken string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roomID, ok := s.byInvite[inviteToken]
	if !ok {
		return nil, false
	}
	room, ok := s.rooms[roomID]
	return room, ok
}

func (s *RoomStore) Delete(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	delete(s.byInvite, room.InviteToken)
	delete(s.rooms, roomID)
	ctx := context.Background()
	_ = s.client.Del(ctx, s.roomKey(roomID)).Err()
	_ = s.client.Del(ctx, s.inviteKey(room.InviteToken)).Err()
}

func (s *RoomStore) All() []*app.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room)
	}
	return out
}

func (s *RoomStore) roomKey(roomID string) string {
	return "battle:room:" + roomID
}

func (s *RoomStore) inviteKey(token string) string {
	return "battle:invite:" + token
}
