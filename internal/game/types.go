package game

type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhasePlaying Phase = "playing"
	PhaseEnded   Phase = "ended"
)

// JoinRole is positional: who created the room vs who joined it.
type JoinRole string

const (
	RoleHost  JoinRole = "host"
	RoleGuest JoinRole = "guest"
)

// GameRole is assigned randomly once both players are ready, never
// derived from join order.
type GameRole string

const (
	RoleHunter GameRole = "hunter"
	RolePrey   GameRole = "prey"
)

// Scores maps the two game roles to round wins.
type Scores map[GameRole]int

// PlayerInfo is the roster snapshot broadcast on join and character
// selection.
type PlayerInfo struct {
	SocketID  string   `json:"socketId"`
	Role      JoinRole `json:"role"`
	Ready     bool     `json:"ready"`
	Character string   `json:"character"`
}

// StartPlayer is the per-player snapshot sent with game-start, once game
// roles exist.
type StartPlayer struct {
	SocketID  string   `json:"socketId"`
	Character string   `json:"character"`
	GameRole  GameRole `json:"gameRole"`
}

// Position is the last position a client reported. The relay forwards
// positions verbatim; this copy is kept only for reconciliation.
type Position struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Angle     float64 `json:"angle"`
	Timestamp int64   `json:"timestamp"`
}

// RoundOutcome describes a finished round.
type RoundOutcome struct {
	Winner      GameRole
	Scores      Scores
	RoundNumber int
	SeriesOver  bool
}

// SeriesOutcome describes a finished series.
type SeriesOutcome struct {
	FinalWinner GameRole
	FinalScores Scores
}
