package game

import (
	"math/rand"
	"sync"
	"time"
)

// Player is one roster entry, keyed by its live connection.
type Player struct {
	ConnID    string
	JoinRole  JoinRole
	Character string
	Ready     bool
	GameRole  GameRole
}

// Room is the per-session state machine. All reads and writes go through
// its mutex; methods return snapshots so callers never hold live state.
type Room struct {
	mu sync.Mutex

	Code      string
	CreatedAt time.Time

	players      []*Player
	phase        Phase
	roundNumber  int
	totalRounds  int
	scores       Scores
	startTime    time.Time
	lastActivity time.Time
	positions    map[string]Position
}

func newRoom(code, hostConnID string, totalRounds int, now time.Time) *Room {
	return &Room{
		Code:      code,
		CreatedAt: now,
		players: []*Player{
			{ConnID: hostConnID, JoinRole: RoleHost},
		},
		phase:        PhaseLobby,
		roundNumber:  1,
		totalRounds:  totalRounds,
		scores:       Scores{RoleHunter: 0, RolePrey: 0},
		lastActivity: now,
		positions:    make(map[string]Position),
	}
}

// AddPlayer admits a second connection as guest. The room is left
// untouched on rejection.
func (r *Room) AddPlayer(connID string) ([]PlayerInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playerLocked(connID) != nil {
		return r.rosterLocked(), nil
	}
	if len(r.players) >= 2 {
		return nil, ErrRoomFull
	}
	if r.phase != PhaseLobby {
		return nil, ErrAlreadyStarted
	}
	r.players = append(r.players, &Player{ConnID: connID, JoinRole: RoleGuest})
	r.lastActivity = time.Now()
	return r.rosterLocked(), nil
}

// SelectCharacter records the sender's choice and marks them ready. When
// this readies the second of two players, game roles are assigned as a
// uniformly random permutation of {hunter, prey} and the room enters the
// playing phase; started reports that transition and start carries the
// role snapshot for game-start.
func (r *Room) SelectCharacter(connID, character string) (roster []PlayerInfo, started bool, start []StartPlayer, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.playerLocked(connID)
	if p == nil {
		return nil, false, nil, ErrNotMember
	}
	p.Character = character
	p.Ready = true
	r.lastActivity = time.Now()

	roster = r.rosterLocked()
	if r.phase != PhaseLobby || len(r.players) != 2 || !r.players[0].Ready || !r.players[1].Ready {
		return roster, false, nil, nil
	}

	roles := []GameRole{RoleHunter, RolePrey}
	rand.Shuffle(len(roles), func(i, j int) { roles[i], roles[j] = roles[j], roles[i] })
	for i, pl := range r.players {
		pl.GameRole = roles[i]
	}
	r.phase = PhasePlaying
	r.startTime = time.Now()
	return roster, true, r.startSnapshotLocked(), nil
}

// EndRound applies a client-reported win: playing -> ended, winner's
// score +1. The outcome says whether this was the final round of the
// series.
func (r *Room) EndRound(winner GameRole) (RoundOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhasePlaying {
		return RoundOutcome{}, ErrInvalidPhase
	}
	if winner != RoleHunter {
		winner = RolePrey
	}
	r.phase = PhaseEnded
	r.scores[winner]++
	r.lastActivity = time.Now()
	return RoundOutcome{
		Winner:      winner,
		Scores:      r.scoresLocked(),
		RoundNumber: r.roundNumber,
		SeriesOver:  r.roundNumber >= r.totalRounds,
	}, nil
}

// AdvanceRound re-enters the playing phase for the next round with the
// same players, roles and characters. It no-ops when the room is not in
// the ended phase or the series is already over, so a stale timer firing
// against a reused code cannot corrupt state.
func (r *Room) AdvanceRound() (roundNumber int, scores Scores, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseEnded || r.roundNumber >= r.totalRounds {
		return 0, nil, false
	}
	r.roundNumber++
	r.phase = PhasePlaying
	r.startTime = time.Now()
	r.lastActivity = time.Now()
	return r.roundNumber, r.scoresLocked(), true
}

// SeriesResult reports the aggregate outcome once the final round has
// ended. Ties go to prey: the winner is hunter only on a strictly higher
// score.
func (r *Room) SeriesResult() (SeriesOutcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseEnded || r.roundNumber < r.totalRounds {
		return SeriesOutcome{}, false
	}
	winner := RolePrey
	if r.scores[RoleHunter] > r.scores[RolePrey] {
		winner = RoleHunter
	}
	return SeriesOutcome{FinalWinner: winner, FinalScores: r.scoresLocked()}, true
}

// RemovePlayer drops a connection from the roster. It reports how many
// players remain; the phase is deliberately left untouched, a mid-match
// disconnect strands the survivor until they leave themselves.
func (r *Room) RemovePlayer(connID string) (remaining int, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.players {
		if p.ConnID == connID {
			r.players = append(r.players[:i], r.players[i+1:]...)
			delete(r.positions, connID)
			r.lastActivity = time.Now()
			return len(r.players), true
		}
	}
	return len(r.players), false
}

// RecordPosition stores the sender's last reported position.
func (r *Room) RecordPosition(connID string, pos Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playerLocked(connID) != nil {
		r.positions[connID] = pos
	}
}

// LastPosition returns the last position reported by a connection.
func (r *Room) LastPosition(connID string) (Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[connID]
	return pos, ok
}

// HasPlayer reports roster membership.
func (r *Room) HasPlayer(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playerLocked(connID) != nil
}

// PeerOf returns the other member's connection id.
func (r *Room) PeerOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		if p.ConnID != connID {
			return p.ConnID, true
		}
	}
	return "", false
}

func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Room) RoundNumber() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roundNumber
}

func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

func (r *Room) Roster() []PlayerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked()
}

func (r *Room) CurrentScores() Scores {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scoresLocked()
}

// Touch refreshes the activity clock. Every room-scoped message touches
// its room so the reaper only evicts genuinely abandoned ones.
func (r *Room) Touch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActivity = time.Now()
}

func (r *Room) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

func (r *Room) playerLocked(connID string) *Player {
	for _, p := range r.players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

func (r *Room) rosterLocked() []PlayerInfo {
	out := make([]PlayerInfo, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, PlayerInfo{
			SocketID:  p.ConnID,
			Role:      p.JoinRole,
			Ready:     p.Ready,
			Character: p.Character,
		})
	}
	return out
}

func (r *Room) startSnapshotLocked() []StartPlayer {
	out := make([]StartPlayer, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, StartPlayer{
			SocketID:  p.ConnID,
			Character: p.Character,
			GameRole:  p.GameRole,
		})
	}
	return out
}

func (r *Room) scoresLocked() Scores {
	out := make(Scores, len(r.scores))
	for role, n := range r.scores {
		out[role] = n
	}
	return out
}
