package ws

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/splitgames/mazehunt/internal/config"
	"github.com/splitgames/mazehunt/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	event   string
	payload interface{}
}

// fakeConn stands in for a socketio.Conn; timers emit from their own
// goroutines, so recording is mutex-guarded.
type fakeConn struct {
	id string

	mu     sync.Mutex
	events []emitted
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.NewString()}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Emit(event string, v ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var payload interface{}
	if len(v) > 0 {
		payload = v[0]
	}
	f.events = append(f.events, emitted{event: event, payload: payload})
}

func (f *fakeConn) received(event string) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interface{}
	for _, e := range f.events {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (f *fakeConn) count(event string) int {
	return len(f.received(event))
}

func (f *fakeConn) lastOf(t *testing.T, event string) interface{} {
	t.Helper()
	got := f.received(event)
	require.NotEmpty(t, got, "expected at least one %q event", event)
	return got[len(got)-1]
}

func newTestServer(rounds int) (*Server, *game.Store) {
	cfg := config.Config{
		RoundsPerSeries: rounds,
		NextRoundDelay:  30 * time.Millisecond,
		SeriesEndDelay:  20 * time.Millisecond,
		RoomTTL:         5 * time.Minute,
		SweepInterval:   5 * time.Minute,
	}
	store := game.NewStore(rounds)
	return New(store, cfg), store
}

func createRoom(t *testing.T, srv *Server, host *fakeConn) string {
	t.Helper()
	srv.CreateRoom(host)
	created := host.lastOf(t, "room-created").(RoomCreated)
	require.Equal(t, game.RoleHost, created.Role)
	require.NotEmpty(t, created.RoomCode)
	return created.RoomCode
}

func joinRoom(t *testing.T, srv *Server, guest *fakeConn, code string) {
	t.Helper()
	srv.JoinRoom(guest, code)
	joined := guest.lastOf(t, "room-joined").(RoomJoined)
	require.Equal(t, game.RoleGuest, joined.Role)
	require.Equal(t, strings.ToUpper(code), joined.RoomCode)
}

func startGame(t *testing.T, srv *Server, host, guest *fakeConn, code string) {
	t.Helper()
	srv.SelectCharacter(host, SelectCharacterPayload{RoomCode: code, Character: "punk"})
	srv.SelectCharacter(guest, SelectCharacterPayload{RoomCode: code, Character: "businessman"})
	require.Equal(t, 1, host.count("game-start"))
	require.Equal(t, 1, guest.count("game-start"))
}

func TestCreateRoom(t *testing.T) {
	srv, store := newTestServer(5)
	host := newFakeConn()

	code := createRoom(t, srv, host)

	room, err := store.Get(code)
	require.NoError(t, err)
	assert.True(t, room.HasPlayer(host.ID()))
	assert.Equal(t, 1, srv.ConnectionCount())
}

func TestCreateRoomReleasesPreviousRoom(t *testing.T) {
	srv, store := newTestServer(5)
	host := newFakeConn()

	first := createRoom(t, srv, host)
	second := createRoom(t, srv, host)
	require.NotEqual(t, first, second)

	// The old room emptied out and was deleted.
	_, err := store.Get(first)
	assert.ErrorIs(t, err, game.ErrRoomNotFound)
	assert.Equal(t, 1, srv.ConnectionCount())
}

func TestJoinRoom(t *testing.T) {
	srv, _ := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)

	for _, c := range []*fakeConn{host, guest} {
		joined := c.lastOf(t, "player-joined").(PlayerJoined)
		require.Len(t, joined.Players, 2)
		assert.Equal(t, game.RoleHost, joined.Players[0].Role)
		assert.Equal(t, game.RoleGuest, joined.Players[1].Role)
	}
}

func TestJoinRoomCaseInsensitive(t *testing.T) {
	srv, _ := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, strings.ToLower(code))
}

func TestJoinRoomNotFound(t *testing.T) {
	srv, _ := newTestServer(5)
	guest := newFakeConn()

	srv.JoinRoom(guest, "NOSUCH")

	errPayload := guest.lastOf(t, "error").(ErrorPayload)
	assert.Equal(t, "room-not-found", errPayload.Code)
	assert.Zero(t, guest.count("room-joined"))
}

func TestJoinRoomFull(t *testing.T) {
	srv, store := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()
	third := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)

	srv.JoinRoom(third, code)

	errPayload := third.lastOf(t, "error").(ErrorPayload)
	assert.Equal(t, "room-full", errPayload.Code)

	// Rejection never mutates the room, and is never broadcast.
	room, err := store.Get(code)
	require.NoError(t, err)
	assert.Equal(t, 2, room.PlayerCount())
	assert.Zero(t, host.count("error"))
	assert.Equal(t, 1, host.count("player-joined"))
}

func TestJoinRoomAlreadyStarted(t *testing.T) {
	srv, _ := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()
	late := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)
	startGame(t, srv, host, guest, code)
	srv.Disconnect(guest)

	srv.JoinRoom(late, code)

	errPayload := late.lastOf(t, "error").(ErrorPayload)
	assert.Equal(t, "already-started", errPayload.Code)
}

func TestSelectCharacterBroadcasts(t *testing.T) {
	srv, _ := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)

	srv.SelectCharacter(host, SelectCharacterPayload{RoomCode: code, Character: "punk"})

	for _, c := range []*fakeConn{host, guest} {
		sel := c.lastOf(t, "character-selected").(CharacterSelected)
		assert.Equal(t, host.ID(), sel.SocketID)
		assert.Equal(t, "punk", sel.Character)
	}
	assert.Zero(t, host.count("game-start"))

	srv.SelectCharacter(guest, SelectCharacterPayload{RoomCode: code, Character: "businessman"})

	start := host.lastOf(t, "game-start").(GameStart)
	require.Len(t, start.Players, 2)
	assert.NotEqual(t, start.Players[0].GameRole, start.Players[1].GameRole)
	assert.Equal(t, 1, guest.count("game-start"))
}

func TestPlayerInputRelaysToPeerOnly(t *testing.T) {
	srv, _ := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)
	startGame(t, srv, host, guest, code)

	controls := json.RawMessage(`{"up":true,"left":false}`)
	srv.PlayerInput(host, PlayerInputPayload{RoomCode: code, Controls: controls, Timestamp: 42})

	relayed := guest.lastOf(t, "opponent-input").(OpponentInput)
	assert.Equal(t, host.ID(), relayed.SocketID)
	assert.JSONEq(t, string(controls), string(relayed.Controls))
	assert.EqualValues(t, 42, relayed.Timestamp)

	// Never echoed back to the sender.
	assert.Zero(t, host.count("opponent-input"))
}

func TestPlayerInputIgnoredBeforeStart(t *testing.T) {
	srv, _ := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)

	srv.PlayerInput(host, PlayerInputPayload{RoomCode: code, Controls: json.RawMessage(`{}`)})

	assert.Zero(t, guest.count("opponent-input"))
	assert.Zero(t, host.count("error"))
}

func TestPlayerInputIgnoredFromNonMember(t *testing.T) {
	srv, _ := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()
	stranger := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)
	startGame(t, srv, host, guest, code)

	srv.PlayerInput(stranger, PlayerInputPayload{RoomCode: code, Controls: json.RawMessage(`{}`)})

	// Silently dropped: no relay, no error surfaced.
	assert.Zero(t, host.count("opponent-input"))
	assert.Zero(t, guest.count("opponent-input"))
	assert.Zero(t, stranger.count("error"))
}

func TestPlayerPositionRelaysAndRecords(t *testing.T) {
	srv, store := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)
	startGame(t, srv, host, guest, code)

	srv.PlayerPosition(guest, PlayerPositionPayload{RoomCode: code, X: 3, Y: 7, Angle: 0.5, Timestamp: 99})

	relayed := host.lastOf(t, "opponent-position").(OpponentPosition)
	assert.Equal(t, guest.ID(), relayed.SocketID)
	assert.Equal(t, 3.0, relayed.X)
	assert.Equal(t, 7.0, relayed.Y)
	assert.Zero(t, guest.count("opponent-position"))

	room, err := store.Get(code)
	require.NoError(t, err)
	pos, ok := room.LastPosition(guest.ID())
	require.True(t, ok)
	assert.Equal(t, game.Position{X: 3, Y: 7, Angle: 0.5, Timestamp: 99}, pos)
}

func TestBoosterCollectedBroadcastsToWholeRoom(t *testing.T) {
	srv, _ := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)
	startGame(t, srv, host, guest, code)

	srv.BoosterCollected(host, BoosterCollectedPayload{RoomCode: code, BoosterID: json.RawMessage(`17`), Timestamp: 5})

	// Both members converge on the same collected set, sender included.
	for _, c := range []*fakeConn{host, guest} {
		collected := c.lastOf(t, "booster-sync-collected").(BoosterSyncCollected)
		assert.Equal(t, host.ID(), collected.CollectorID)
		assert.Equal(t, "17", string(collected.BoosterID))
	}
}

func TestGameEndBroadcastsAndAdvancesRound(t *testing.T) {
	srv, _ := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)
	startGame(t, srv, host, guest, code)

	srv.GameEnd(host, GameEndPayload{RoomCode: code, Winner: game.RoleHunter})

	for _, c := range []*fakeConn{host, guest} {
		ended := c.lastOf(t, "game-ended").(GameEnded)
		assert.Equal(t, game.RoleHunter, ended.Winner)
		assert.Equal(t, 1, ended.Scores[game.RoleHunter])
		assert.Equal(t, 0, ended.Scores[game.RolePrey])
		assert.Equal(t, 1, ended.RoundNumber)
	}

	require.Eventually(t, func() bool {
		return host.count("next-round") == 1 && guest.count("next-round") == 1
	}, time.Second, 5*time.Millisecond)

	next := host.lastOf(t, "next-round").(NextRound)
	assert.Equal(t, 2, next.RoundNumber)
	assert.Equal(t, 1, next.Scores[game.RoleHunter])
}

func TestGameEndIgnoredOutsidePlaying(t *testing.T) {
	srv, _ := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)

	srv.GameEnd(host, GameEndPayload{RoomCode: code, Winner: game.RoleHunter})
	assert.Zero(t, host.count("game-ended"))
	assert.Zero(t, guest.count("game-ended"))
}

func TestSeriesEndsAfterFinalRound(t *testing.T) {
	srv, _ := newTestServer(1)
	host := newFakeConn()
	guest := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)
	startGame(t, srv, host, guest, code)

	srv.GameEnd(guest, GameEndPayload{RoomCode: code, Winner: game.RolePrey})

	require.Eventually(t, func() bool {
		return host.count("series-ended") == 1 && guest.count("series-ended") == 1
	}, time.Second, 5*time.Millisecond)

	final := host.lastOf(t, "series-ended").(SeriesEnded)
	assert.Equal(t, game.RolePrey, final.FinalWinner)
	assert.Equal(t, 1, final.FinalScores[game.RolePrey])

	// Final round never schedules another round.
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, host.count("next-round"))
}

func TestStaleRoundTimerNoops(t *testing.T) {
	srv, store := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)
	startGame(t, srv, host, guest, code)

	srv.GameEnd(host, GameEndPayload{RoomCode: code, Winner: game.RoleHunter})
	store.Delete(code)

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, host.count("next-round"))
	assert.Zero(t, guest.count("next-round"))
}

func TestLeaveRoomNotifiesSurvivor(t *testing.T) {
	srv, store := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)
	startGame(t, srv, host, guest, code)

	srv.LeaveRoom(guest, code)

	gone := host.lastOf(t, "player-disconnected").(PlayerDisconnected)
	assert.Equal(t, guest.ID(), gone.DisconnectedID)
	assert.Equal(t, 1, gone.RemainingPlayers)

	// The room survives with the phase untouched.
	room, err := store.Get(code)
	require.NoError(t, err)
	assert.Equal(t, game.PhasePlaying, room.Phase())
	assert.Equal(t, 1, room.PlayerCount())
}

func TestDisconnectLastPlayerDeletesRoom(t *testing.T) {
	srv, store := newTestServer(5)
	host := newFakeConn()
	guest := newFakeConn()

	code := createRoom(t, srv, host)
	joinRoom(t, srv, guest, code)

	srv.Disconnect(guest)
	srv.Disconnect(host)

	_, err := store.Get(code)
	assert.ErrorIs(t, err, game.ErrRoomNotFound)
	assert.Equal(t, 0, srv.ConnectionCount())
}

func TestDisconnectWithoutRoomIsNoop(t *testing.T) {
	srv, _ := newTestServer(5)
	c := newFakeConn()
	srv.Disconnect(c)
	assert.Empty(t, c.received("error"))
}

// Full match script: create, join, pick characters, relay input, report a
// win, advance to round two.
func TestFullMatchScenario(t *testing.T) {
	srv, _ := newTestServer(5)
	a := newFakeConn()
	b := newFakeConn()

	code := createRoom(t, srv, a)
	joinRoom(t, srv, b, code)

	joined := a.lastOf(t, "player-joined").(PlayerJoined)
	require.Len(t, joined.Players, 2)

	startGame(t, srv, a, b, code)
	start := b.lastOf(t, "game-start").(GameStart)
	assert.NotEqual(t, start.Players[0].GameRole, start.Players[1].GameRole)

	srv.PlayerInput(a, PlayerInputPayload{RoomCode: code, Controls: json.RawMessage(`{"right":true}`), Timestamp: 1})
	assert.Equal(t, 1, b.count("opponent-input"))
	assert.Zero(t, a.count("opponent-input"))

	srv.GameEnd(a, GameEndPayload{RoomCode: code, Winner: game.RoleHunter})
	for _, c := range []*fakeConn{a, b} {
		ended := c.lastOf(t, "game-ended").(GameEnded)
		assert.Equal(t, 1, ended.Scores[game.RoleHunter])
	}

	require.Eventually(t, func() bool {
		return a.count("next-round") == 1 && b.count("next-round") == 1
	}, time.Second, 5*time.Millisecond)
	next := b.lastOf(t, "next-round").(NextRound)
	assert.Equal(t, 2, next.RoundNumber)
}
