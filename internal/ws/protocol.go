package ws

import (
	"encoding/json"

	"github.com/splitgames/mazehunt/internal/game"
)

// Inbound payloads. Controls and booster ids are client-defined and
// relayed verbatim, so they stay raw JSON.

type SelectCharacterPayload struct {
	RoomCode  string `json:"roomCode"`
	Character string `json:"character"`
}

type PlayerInputPayload struct {
	RoomCode  string          `json:"roomCode"`
	Controls  json.RawMessage `json:"controls"`
	Timestamp int64           `json:"timestamp"`
}

type PlayerPositionPayload struct {
	RoomCode  string  `json:"roomCode"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Angle     float64 `json:"angle"`
	Timestamp int64   `json:"timestamp"`
}

type BoosterCollectedPayload struct {
	RoomCode  string          `json:"roomCode"`
	BoosterID json.RawMessage `json:"boosterId"`
	Timestamp int64           `json:"timestamp"`
}

type GameEndPayload struct {
	RoomCode string        `json:"roomCode"`
	Winner   game.GameRole `json:"winner"`
}

// Outbound payloads, one named type per event.

type RoomCreated struct {
	RoomCode string        `json:"roomCode"`
	Role     game.JoinRole `json:"role"`
}

type RoomJoined struct {
	RoomCode string        `json:"roomCode"`
	Role     game.JoinRole `json:"role"`
}

type PlayerJoined struct {
	Players []game.PlayerInfo `json:"players"`
}

type CharacterSelected struct {
	SocketID  string            `json:"socketId"`
	Character string            `json:"character"`
	Players   []game.PlayerInfo `json:"players"`
}

type GameStart struct {
	Players []game.StartPlayer `json:"players"`
}

type OpponentInput struct {
	SocketID  string          `json:"socketId"`
	Controls  json.RawMessage `json:"controls"`
	Timestamp int64           `json:"timestamp"`
}

type OpponentPosition struct {
	SocketID  string  `json:"socketId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Angle     float64 `json:"angle"`
	Timestamp int64   `json:"timestamp"`
}

type BoosterSyncCollected struct {
	BoosterID   json.RawMessage `json:"boosterId"`
	CollectorID string          `json:"collectorId"`
	Timestamp   int64           `json:"timestamp"`
}

type GameEnded struct {
	Winner      game.GameRole `json:"winner"`
	Scores      game.Scores   `json:"scores"`
	RoundNumber int           `json:"roundNumber"`
}

type NextRound struct {
	RoundNumber int         `json:"roundNumber"`
	Scores      game.Scores `json:"scores"`
}

type SeriesEnded struct {
	FinalWinner game.GameRole `json:"finalWinner"`
	FinalScores game.Scores   `json:"finalScores"`
}

type PlayerDisconnected struct {
	DisconnectedID   string `json:"disconnectedId"`
	RemainingPlayers int    `json:"remainingPlayers"`
}

// ErrorPayload is only ever emitted to the requester, never broadcast.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
