package memory

import (
	"fmt"
	"sync"

	"battle-room-service/internal/app"
)

// RoomStore is the in-memory implementation of app.RoomRepository. It only
// guards the maps; room state is serialized by the rooms themselves.
type RoomStore struct {
	mu       sync.RWMutex
	rooms    map[string]*app.Room
	byInvite map[string]string
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
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
	if room, ok := s.rooms[roomID]; ok {
		delete(s.byInvite, room.InviteToken)
		delete(s.rooms, roomID)
	}
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
