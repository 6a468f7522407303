package ws

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog/log"
	"github.com/splitgames/mazehunt/internal/config"
	"github.com/splitgames/mazehunt/internal/game"
)

// Conn is the slice of socketio.Conn the gateway needs. Handlers take
// this interface so tests can drive them with fakes.
type Conn interface {
	ID() string
	Emit(event string, v ...interface{})
}

// Server relays events between the two members of a room. It keeps its
// own membership maps rather than using socket.io rooms so it can address
// "the peer" and "the whole room" directly.
type Server struct {
	store *game.Store
	cfg   config.Config

	mu      sync.Mutex
	members map[string]map[string]Conn // roomCode -> connID -> conn
	roomOf  map[string]string          // connID -> roomCode
}

func New(store *game.Store, cfg config.Config) *Server {
	return &Server{
		store:   store,
		cfg:     cfg,
		members: make(map[string]map[string]Conn),
		roomOf:  make(map[string]string),
	}
}

// Mount attaches the Socket.IO server with all relay handlers to the
// given gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext("")
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	io.OnEvent("/", "create-room", func(s socketio.Conn) {
		srv.CreateRoom(s)
	})

	io.OnEvent("/", "join-room", func(s socketio.Conn, roomCode string) {
		srv.JoinRoom(s, roomCode)
	})

	io.OnEvent("/", "select-character", func(s socketio.Conn, p SelectCharacterPayload) {
		srv.SelectCharacter(s, p)
	})

	io.OnEvent("/", "player-input", func(s socketio.Conn, p PlayerInputPayload) {
		srv.PlayerInput(s, p)
	})

	io.OnEvent("/", "player-position", func(s socketio.Conn, p PlayerPositionPayload) {
		srv.PlayerPosition(s, p)
	})

	io.OnEvent("/", "booster-collected", func(s socketio.Conn, p BoosterCollectedPayload) {
		srv.BoosterCollected(s, p)
	})

	io.OnEvent("/", "game-end", func(s socketio.Conn, p GameEndPayload) {
		srv.GameEnd(s, p)
	})

	io.OnEvent("/", "leave-room", func(s socketio.Conn, roomCode string) {
		srv.LeaveRoom(s, roomCode)
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})

	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		srv.Disconnect(s)
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go io.Serve()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// CORS preflight for the Socket.IO polling transport
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

// CreateRoom always succeeds for a connected client. A connection holds
// at most one membership, so any current room is left first.
func (srv *Server) CreateRoom(c Conn) {
	if code, ok := srv.roomCodeOf(c.ID()); ok {
		srv.leave(c, code)
	}
	room := srv.store.Create(c.ID())
	srv.addMember(room.Code, c)
	log.Info().Str("sid", c.ID()).Str("code", room.Code).Msg("create-room")
	c.Emit("room-created", RoomCreated{RoomCode: room.Code, Role: game.RoleHost})
}

func (srv *Server) JoinRoom(c Conn, roomCode string) {
	room, err := srv.store.Get(roomCode)
	if err != nil {
		srv.sendErr(c, err)
		return
	}
	roster, err := room.AddPlayer(c.ID())
	if err != nil {
		srv.sendErr(c, err)
		return
	}
	if code, ok := srv.roomCodeOf(c.ID()); ok && code != room.Code {
		srv.leave(c, code)
	}
	srv.addMember(room.Code, c)
	log.Info().Str("sid", c.ID()).Str("code", room.Code).Msg("join-room")
	c.Emit("room-joined", RoomJoined{RoomCode: room.Code, Role: game.RoleGuest})
	srv.broadcast(room.Code, "player-joined", PlayerJoined{Players: roster})
}

func (srv *Server) SelectCharacter(c Conn, p SelectCharacterPayload) {
	room, err := srv.store.Get(p.RoomCode)
	if err != nil {
		srv.drop(c, "select-character", err)
		return
	}
	roster, started, start, err := room.SelectCharacter(c.ID(), p.Character)
	if err != nil {
		srv.drop(c, "select-character", err)
		return
	}
	log.Info().Str("sid", c.ID()).Str("code", room.Code).Str("character", p.Character).Msg("select-character")
	srv.broadcast(room.Code, "character-selected", CharacterSelected{
		SocketID:  c.ID(),
		Character: p.Character,
		Players:   roster,
	})
	if started {
		log.Info().Str("code", room.Code).Msg("game started")
		srv.broadcast(room.Code, "game-start", GameStart{Players: start})
	}
}

// PlayerInput relays controls to the peer only, never echoed back.
func (srv *Server) PlayerInput(c Conn, p PlayerInputPayload) {
	room, ok := srv.playingRoom(c, p.RoomCode, "player-input")
	if !ok {
		return
	}
	room.Touch()
	srv.emitToPeer(room, c.ID(), "opponent-input", OpponentInput{
		SocketID:  c.ID(),
		Controls:  p.Controls,
		Timestamp: p.Timestamp,
	})
}

func (srv *Server) PlayerPosition(c Conn, p PlayerPositionPayload) {
	room, ok := srv.playingRoom(c, p.RoomCode, "player-position")
	if !ok {
		return
	}
	room.RecordPosition(c.ID(), game.Position{X: p.X, Y: p.Y, Angle: p.Angle, Timestamp: p.Timestamp})
	room.Touch()
	srv.emitToPeer(room, c.ID(), "opponent-position", OpponentPosition{
		SocketID:  c.ID(),
		X:         p.X,
		Y:         p.Y,
		Angle:     p.Angle,
		Timestamp: p.Timestamp,
	})
}

// BoosterCollected fans out to the whole room including the sender, so
// both clients converge on the same collected set. First claim wins on
// the clients; the server holds no booster state.
func (srv *Server) BoosterCollected(c Conn, p BoosterCollectedPayload) {
	room, err := srv.store.Get(p.RoomCode)
	if err != nil {
		srv.drop(c, "booster-collected", err)
		return
	}
	if !room.HasPlayer(c.ID()) {
		srv.drop(c, "booster-collected", game.ErrNotMember)
		return
	}
	room.Touch()
	srv.broadcast(room.Code, "booster-sync-collected", BoosterSyncCollected{
		BoosterID:   p.BoosterID,
		CollectorID: c.ID(),
		Timestamp:   p.Timestamp,
	})
}

// GameEnd trusts the client-reported winner, advances scores, and
// schedules either the next round or the series summary.
func (srv *Server) GameEnd(c Conn, p GameEndPayload) {
	room, err := srv.store.Get(p.RoomCode)
	if err != nil {
		srv.drop(c, "game-end", err)
		return
	}
	if !room.HasPlayer(c.ID()) {
		srv.drop(c, "game-end", game.ErrNotMember)
		return
	}
	outcome, err := room.EndRound(p.Winner)
	if err != nil {
		srv.drop(c, "game-end", err)
		return
	}
	log.Info().Str("code", room.Code).Str("winner", string(outcome.Winner)).Int("round", outcome.RoundNumber).Msg("round ended")
	srv.broadcast(room.Code, "game-ended", GameEnded{
		Winner:      outcome.Winner,
		Scores:      outcome.Scores,
		RoundNumber: outcome.RoundNumber,
	})

	code := room.Code
	if outcome.SeriesOver {
		time.AfterFunc(srv.cfg.SeriesEndDelay, func() { srv.finishSeries(code) })
	} else {
		time.AfterFunc(srv.cfg.NextRoundDelay, func() { srv.advanceRound(code) })
	}
}

// LeaveRoom also covers the case where the room was already reaped: the
// membership entry is cleared either way.
func (srv *Server) LeaveRoom(c Conn, roomCode string) {
	srv.leave(c, strings.ToUpper(roomCode))
}

// Disconnect is the transport-level counterpart of leave-room.
func (srv *Server) Disconnect(c Conn) {
	if code, ok := srv.roomCodeOf(c.ID()); ok {
		srv.leave(c, code)
	}
}

// advanceRound fires after the next-round delay. The room may have been
// deleted or drained in the meantime, so it re-checks liveness and phase
// and no-ops when stale.
func (srv *Server) advanceRound(code string) {
	room, err := srv.store.Get(code)
	if err != nil {
		return
	}
	n, scores, ok := room.AdvanceRound()
	if !ok {
		return
	}
	log.Info().Str("code", code).Int("round", n).Msg("next round")
	srv.broadcast(code, "next-round", NextRound{RoundNumber: n, Scores: scores})
}

func (srv *Server) finishSeries(code string) {
	room, err := srv.store.Get(code)
	if err != nil {
		return
	}
	result, ok := room.SeriesResult()
	if !ok {
		return
	}
	log.Info().Str("code", code).Str("winner", string(result.FinalWinner)).Msg("series ended")
	srv.broadcast(code, "series-ended", SeriesEnded{
		FinalWinner: result.FinalWinner,
		FinalScores: result.FinalScores,
	})
}

func (srv *Server) leave(c Conn, code string) {
	room, err := srv.store.Get(code)
	if err != nil {
		srv.removeMember(code, c.ID())
		return
	}
	remaining, removed := room.RemovePlayer(c.ID())
	srv.removeMember(code, c.ID())
	if !removed {
		return
	}
	log.Info().Str("sid", c.ID()).Str("code", code).Int("remaining", remaining).Msg("left room")
	if remaining == 0 {
		srv.store.Delete(code)
		return
	}
	srv.broadcast(code, "player-disconnected", PlayerDisconnected{
		DisconnectedID:   c.ID(),
		RemainingPlayers: remaining,
	})
}

// playingRoom resolves per-frame relay preconditions: room exists, sender
// is a member, phase is playing. Violations are dropped silently since a
// correct client cannot produce them.
func (srv *Server) playingRoom(c Conn, code, event string) (*game.Room, bool) {
	room, err := srv.store.Get(code)
	if err != nil {
		srv.drop(c, event, err)
		return nil, false
	}
	if !room.HasPlayer(c.ID()) {
		srv.drop(c, event, game.ErrNotMember)
		return nil, false
	}
	if room.Phase() != game.PhasePlaying {
		srv.drop(c, event, game.ErrInvalidPhase)
		return nil, false
	}
	return room, true
}

// ConnectionCount reports how many connections currently hold a room
// membership.
func (srv *Server) ConnectionCount() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.roomOf)
}

func (srv *Server) addMember(code string, c Conn) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.members[code] == nil {
		srv.members[code] = make(map[string]Conn)
	}
	srv.members[code][c.ID()] = c
	srv.roomOf[c.ID()] = code
}

func (srv *Server) removeMember(code, connID string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if m := srv.members[code]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(srv.members, code)
		}
	}
	if srv.roomOf[connID] == code {
		delete(srv.roomOf, connID)
	}
}

func (srv *Server) roomCodeOf(connID string) (string, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	code, ok := srv.roomOf[connID]
	return code, ok
}

func (srv *Server) broadcast(code, event string, payload interface{}) {
	for _, c := range srv.roomConns(code) {
		c.Emit(event, payload)
	}
}

func (srv *Server) emitToPeer(room *game.Room, senderID, event string, payload interface{}) {
	peerID, ok := room.PeerOf(senderID)
	if !ok {
		return
	}
	for _, c := range srv.roomConns(room.Code) {
		if c.ID() == peerID {
			c.Emit(event, payload)
		}
	}
}

func (srv *Server) roomConns(code string) []Conn {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	out := make([]Conn, 0, len(srv.members[code]))
	for _, c := range srv.members[code] {
		out = append(out, c)
	}
	return out
}

// sendErr maps request errors to the error event, emitted to the
// requester only.
func (srv *Server) sendErr(c Conn, err error) {
	payload := ErrorPayload{Code: "bad_request", Message: err.Error()}
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		payload.Code = "room-not-found"
		payload.Message = "Room not found"
	case errors.Is(err, game.ErrRoomFull):
		payload.Code = "room-full"
		payload.Message = "Room is full"
	case errors.Is(err, game.ErrAlreadyStarted):
		payload.Code = "already-started"
		payload.Message = "Game already started"
	}
	c.Emit("error", payload)
}

func (srv *Server) drop(c Conn, event string, err error) {
	log.Debug().Str("sid", c.ID()).Str("event", event).Err(err).Msg("dropped message")
}
