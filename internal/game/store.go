package game

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrAlreadyStarted = errors.New("game already started")
	ErrNotMember      = errors.New("not a member of this room")
	ErrInvalidPhase   = errors.New("invalid phase for action")
)

const codeLength = 6

// Store is the in-memory registry of live rooms, keyed by uppercase room
// code. Codes are unique among live rooms; after deletion a code may be
// handed out again.
type Store struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	totalRounds int
}

func NewStore(totalRounds int) *Store {
	return &Store{rooms: make(map[string]*Room), totalRounds: totalRounds}
}

// Create builds a room in the lobby phase with the host as sole player.
// Code generation retries on collision.
func (st *Store) Create(hostConnID string) *Room {
	st.mu.Lock()
	defer st.mu.Unlock()

	code := randomCode(codeLength)
	for st.rooms[code] != nil {
		code = randomCode(codeLength)
	}
	r := newRoom(code, hostConnID, st.totalRounds, time.Now())
	st.rooms[code] = r
	log.Info().Str("code", code).Str("host", hostConnID).Msg("room created")
	return r
}

// Get looks a room up case-insensitively.
func (st *Store) Get(code string) (*Room, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	r := st.rooms[strings.ToUpper(code)]
	if r == nil {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Delete removes a room; deleting an absent code is a no-op.
func (st *Store) Delete(code string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	code = strings.ToUpper(code)
	if st.rooms[code] != nil {
		delete(st.rooms, code)
		log.Info().Str("code", code).Msg("room deleted")
	}
}

// Rooms returns a snapshot of all live rooms, for the reaper and stats.
func (st *Store) Rooms() []*Room {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Room, 0, len(st.rooms))
	for _, r := range st.rooms {
		out = append(out, r)
	}
	return out
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.rooms)
}

// Excludes lookalike characters (0/O, 1/I).
func randomCode(n int) string {
	letters := []rune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
