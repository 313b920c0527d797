package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/ban-pick-server/internal/engine"
	"github.com/DoyleJ11/ban-pick-server/internal/feed"
	"github.com/DoyleJ11/ban-pick-server/internal/hub"
	"github.com/DoyleJ11/ban-pick-server/internal/lobby"
	"github.com/DoyleJ11/ban-pick-server/pkg/types"
)

// One ban each, then Blue picks one and Red picks one.
func shortSchedule() engine.Schedule {
	return engine.Schedule{
		BanRounds: map[int]engine.BanRound{
			1: {FirstSide: engine.SideBlue, CountPerSide: 1},
		},
		PickRounds: map[int][]engine.PickStep{
			1: {{Side: engine.SideBlue, Count: 1}, {Side: engine.SideRed, Count: 1}},
		},
	}
}

type fakeArchive struct {
	mu    sync.Mutex
	snaps []lobby.Snapshot
}

func (a *fakeArchive) Record(_ context.Context, snap lobby.Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snaps = append(a.snaps, snap)
	return nil
}

type fakeFeed struct {
	mu      sync.Mutex
	actions []feed.Action
}

func (f *fakeFeed) Publish(_ context.Context, a feed.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, a)
	return nil
}

type fixture struct {
	srv     *Server
	hub     *hub.Hub
	archive *fakeArchive
	feed    *fakeFeed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	h := hub.NewHub(context.Background(), shortSchedule(), hub.Options{
		CodeLength:  6,
		IdleTimeout: time.Hour,
	}, log.Named("hub"))
	t.Cleanup(h.Shutdown)

	f := &fixture{hub: h, archive: &fakeArchive{}, feed: &fakeFeed{}}
	f.srv = NewServer(h, Options{
		RoomIDLength:  6,
		NameMaxLength: 20,
		Archive:       f.archive,
		Feed:          f.feed,
	}, log.Named("ws"))
	t.Cleanup(f.srv.Wait)
	return f
}

func (f *fixture) connect(id string) *client {
	return f.srv.register(lobby.ConnID(id), nil)
}

func (f *fixture) dispatch(t *testing.T, id, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	f.srv.Dispatch(context.Background(), lobby.ConnID(id), types.ClientMessage{Event: event, Data: raw})
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func next(t *testing.T, c *client) inbound {
	t.Helper()
	select {
	case payload := <-c.out:
		var msg inbound
		require.NoError(t, json.Unmarshal(payload, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message for %s", c.id)
		return inbound{}
	}
}

func expect[T any](t *testing.T, c *client, event string) T {
	t.Helper()
	msg := next(t, c)
	require.Equal(t, event, msg.Event, "payload: %s", msg.Data)
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}

func drain(c *client) {
	for {
		select {
		case <-c.out:
		default:
			return
		}
	}
}

func assertSilent(t *testing.T, c *client) {
	t.Helper()
	select {
	case payload := <-c.out:
		t.Fatalf("unexpected message for %s: %s", c.id, payload)
	default:
	}
}

type stateUpdate struct {
	GameState lobby.Snapshot `json:"gameState"`
	YourSide  string         `json:"yourSide"`
}

func join(name, side string) types.JoinRoomRequest {
	return types.JoinRoomRequest{RoomID: "abc123", PlayerName: name, Side: side}
}

func item(v string) types.ItemRequest {
	return types.ItemRequest{RoomID: "ABC123", Item: v}
}

// seat puts alice on Blue and bob on Red in ABC123 and drains the join
// traffic.
func (f *fixture) seat(t *testing.T) (*client, *client) {
	t.Helper()
	alice, bob := f.connect("alice"), f.connect("bob")
	f.dispatch(t, "alice", types.EvtJoinRoom, join("Alice", "Blue"))
	f.dispatch(t, "bob", types.EvtJoinRoom, join("Bob", "Red"))
	drain(alice)
	drain(bob)
	return alice, bob
}

func TestJoin_AckThenStateToEveryMember(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.connect("alice"), f.connect("bob")

	f.dispatch(t, "alice", types.EvtJoinRoom, join("  Alice ", "blue"))
	joined := expect[types.JoinedRoom](t, alice, types.EvtJoinedRoom)
	assert.Equal(t, "ABC123", joined.RoomID)
	assert.Equal(t, "Blue", joined.Side)
	assert.Equal(t, "Alice", joined.PlayerName)
	assert.Equal(t, types.RoomCapacity{PlayersCount: 1, MaxPlayers: 2}, joined.RoomInfo)
	st := expect[stateUpdate](t, alice, types.EvtGameStateUpdate)
	assert.Equal(t, engine.PhaseWaiting, st.GameState.Phase)
	assert.Equal(t, "Blue", st.YourSide)

	f.dispatch(t, "bob", types.EvtJoinRoom, join("Bob", "Red"))
	expect[types.JoinedRoom](t, bob, types.EvtJoinedRoom)
	bobState := expect[stateUpdate](t, bob, types.EvtGameStateUpdate)
	aliceState := expect[stateUpdate](t, alice, types.EvtGameStateUpdate)

	assert.Equal(t, "Red", bobState.YourSide)
	assert.Equal(t, "Blue", aliceState.YourSide)
	assert.Equal(t, engine.PhaseBan, aliceState.GameState.Phase)
	assert.Equal(t, 1, aliceState.GameState.CurrentRound)
	assert.Equal(t, engine.SideBlue, aliceState.GameState.CurrentSide)
	assert.Len(t, aliceState.GameState.Roster, 2)
	assertSilent(t, alice)
}

func TestJoin_Rejections(t *testing.T) {
	f := newFixture(t)
	f.seat(t)

	tests := []struct {
		name string
		req  types.JoinRoomRequest
		kind types.ErrorKind
	}{
		{"room full", join("Carol", "Blue"), types.ErrRoomFull},
		{"missing room", types.JoinRoomRequest{PlayerName: "Carol", Side: "Blue"}, types.ErrInvalidRequest},
		{"short room id", types.JoinRoomRequest{RoomID: "AB", PlayerName: "Carol", Side: "Blue"}, types.ErrInvalidRequest},
		{"symbols in room id", types.JoinRoomRequest{RoomID: "AB-12!", PlayerName: "Carol", Side: "Blue"}, types.ErrInvalidRequest},
		{"blank name", types.JoinRoomRequest{RoomID: "ZZZ999", PlayerName: "   ", Side: "Blue"}, types.ErrInvalidRequest},
		{"long name", types.JoinRoomRequest{RoomID: "ZZZ999", PlayerName: "abcdefghijklmnopqrstu", Side: "Blue"}, types.ErrInvalidRequest},
		{"bad side", types.JoinRoomRequest{RoomID: "ZZZ999", PlayerName: "Carol", Side: "Green"}, types.ErrInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			carol := f.connect("carol")
			f.dispatch(t, "carol", types.EvtJoinRoom, tc.req)
			e := expect[types.Error](t, carol, types.EvtError)
			assert.Equal(t, tc.kind, e.Kind)
			assert.NotEmpty(t, e.Message)
			assertSilent(t, carol)
		})
	}

	_, ok := f.hub.Get("ZZZ999")
	assert.False(t, ok, "rejected joins must not create rooms")
}

func TestJoin_SideAndNameTaken(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice")
	carol := f.connect("carol")
	f.dispatch(t, "alice", types.EvtJoinRoom, join("Alice", "Blue"))
	drain(alice)

	f.dispatch(t, "carol", types.EvtJoinRoom, join("Carol", "Blue"))
	assert.Equal(t, types.ErrSideTaken, expect[types.Error](t, carol, types.EvtError).Kind)

	f.dispatch(t, "carol", types.EvtJoinRoom, join("ALICE", "Red"))
	assert.Equal(t, types.ErrNameTaken, expect[types.Error](t, carol, types.EvtError).Kind)

	assertSilent(t, alice)
}

func TestDraft_PlaysToCompletion(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.seat(t)

	// Out of turn: only the originator hears about it.
	f.dispatch(t, "bob", types.EvtBanItem, item("X"))
	failed := expect[types.ActionFailed](t, bob, types.EvtActionFailed)
	assert.Equal(t, "ban", failed.Action)
	assert.Equal(t, types.ErrNotYourTurn, failed.Kind)
	assertSilent(t, alice)

	steps := []struct {
		conn   string
		event  string
		item   string
		player string
	}{
		{"alice", types.EvtBanItem, "X", "Alice"},
		{"bob", types.EvtBanItem, "Y", "Bob"},
		{"alice", types.EvtPickItem, "A", "Alice"},
		{"bob", types.EvtPickItem, "B", "Bob"},
	}
	var last stateUpdate
	for _, s := range steps {
		f.dispatch(t, s.conn, s.event, item(s.item))
		for _, c := range []*client{alice, bob} {
			ok := expect[types.ActionSuccess](t, c, types.EvtActionSuccess)
			assert.Equal(t, s.item, ok.Item)
			assert.Equal(t, s.player, ok.Player)
			last = expect[stateUpdate](t, c, types.EvtGameStateUpdate)
		}
	}

	assert.Equal(t, engine.PhaseComplete, last.GameState.Phase)
	assert.Len(t, last.GameState.BannedItems, 2)
	assert.Len(t, last.GameState.PickedItems, 2)

	f.dispatch(t, "alice", types.EvtPickItem, item("C"))
	assert.Equal(t, types.ErrWrongPhase, expect[types.ActionFailed](t, alice, types.EvtActionFailed).Kind)

	f.srv.Wait()
	f.archive.mu.Lock()
	require.Len(t, f.archive.snaps, 1)
	assert.Equal(t, "ABC123", f.archive.snaps[0].RoomID)
	f.archive.mu.Unlock()

	f.feed.mu.Lock()
	defer f.feed.mu.Unlock()
	require.Len(t, f.feed.actions, 4)
	kinds := map[string]int{}
	for _, a := range f.feed.actions {
		kinds[a.Kind]++
		assert.Equal(t, "ABC123", a.RoomID)
	}
	assert.Equal(t, map[string]int{"ban": 2, "pick": 2}, kinds)
}

func TestAction_Rejections(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.seat(t)
	carol := f.connect("carol")

	f.dispatch(t, "alice", types.EvtBanItem, item("X"))
	drain(alice)

	f.dispatch(t, "alice", types.EvtBanItem, types.ItemRequest{RoomID: "ABC123"})
	assert.Equal(t, types.ErrInvalidRequest, expect[types.ActionFailed](t, alice, types.EvtActionFailed).Kind)

	f.dispatch(t, "alice", types.EvtBanItem, types.ItemRequest{RoomID: "NOPE00", Item: "Z"})
	assert.Equal(t, types.ErrRoomNotFound, expect[types.ActionFailed](t, alice, types.EvtActionFailed).Kind)

	f.dispatch(t, "carol", types.EvtBanItem, item("Z"))
	assert.Equal(t, types.ErrRoomNotFound, expect[types.ActionFailed](t, carol, types.EvtActionFailed).Kind)
}

func TestAction_ItemAlreadyUsed(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.seat(t)

	f.dispatch(t, "alice", types.EvtBanItem, item("X"))
	drain(alice)
	drain(bob)

	f.dispatch(t, "bob", types.EvtBanItem, item("X"))
	assert.Equal(t, types.ErrItemUnavailable, expect[types.ActionFailed](t, bob, types.EvtActionFailed).Kind)
	assertSilent(t, alice)
}

func TestReset_BroadcastsNoticeAndStartState(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.seat(t)

	f.dispatch(t, "alice", types.EvtBanItem, item("X"))
	drain(alice)
	drain(bob)

	f.dispatch(t, "bob", types.EvtResetGame, types.RoomRequest{RoomID: "ABC123"})
	for _, c := range []*client{alice, bob} {
		notice := expect[types.GameReset](t, c, types.EvtGameReset)
		assert.Equal(t, "Bob", notice.ResetBy)
		st := expect[stateUpdate](t, c, types.EvtGameStateUpdate)
		assert.Equal(t, engine.PhaseBan, st.GameState.Phase)
		assert.Equal(t, 1, st.GameState.CurrentRound)
		assert.Empty(t, st.GameState.BannedItems)
	}

	carol := f.connect("carol")
	f.dispatch(t, "carol", types.EvtResetGame, types.RoomRequest{RoomID: "ABC123"})
	assert.Equal(t, types.ErrRoomNotFound, expect[types.Error](t, carol, types.EvtError).Kind)
}

func TestLeave_UpdatesRemainingAndDeletesEmptyRoom(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.seat(t)

	f.dispatch(t, "bob", types.EvtLeaveRoom, struct{}{})
	assertSilent(t, bob)
	st := expect[stateUpdate](t, alice, types.EvtGameStateUpdate)
	assert.Equal(t, engine.PhaseWaiting, st.GameState.Phase)
	assert.Equal(t, 1, st.GameState.PlayersCount)

	f.dispatch(t, "alice", types.EvtLeaveRoom, types.RoomRequest{RoomID: "abc123"})
	assertSilent(t, alice)
	_, ok := f.hub.Get("ABC123")
	assert.False(t, ok)
}

func TestJoinSecondRoom_LeavesFirst(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.seat(t)

	f.dispatch(t, "bob", types.EvtJoinRoom, types.JoinRoomRequest{RoomID: "XYZ789", PlayerName: "Bob", Side: "Red"})
	st := expect[stateUpdate](t, alice, types.EvtGameStateUpdate)
	assert.Equal(t, 1, st.GameState.PlayersCount)
	assert.Equal(t, engine.PhaseWaiting, st.GameState.Phase)

	joined := expect[types.JoinedRoom](t, bob, types.EvtJoinedRoom)
	assert.Equal(t, "XYZ789", joined.RoomID)

	code, ok := f.hub.RoomOf("bob")
	require.True(t, ok)
	assert.Equal(t, "XYZ789", code)
}

func TestDisconnect_MidBanResetsForRemainingPlayer(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.seat(t)

	f.dispatch(t, "alice", types.EvtBanItem, item("X"))
	drain(alice)

	f.srv.disconnect("bob")
	st := expect[stateUpdate](t, alice, types.EvtGameStateUpdate)
	assert.Equal(t, engine.PhaseWaiting, st.GameState.Phase)
	assert.Empty(t, st.GameState.BannedItems)
	assert.Equal(t, 1, st.GameState.PlayersCount)

	// Re-seating a second player restarts from round 1.
	f.connect("dave")
	f.dispatch(t, "dave", types.EvtJoinRoom, join("Dave", "Red"))
	st = expect[stateUpdate](t, alice, types.EvtGameStateUpdate)
	assert.Equal(t, engine.PhaseBan, st.GameState.Phase)
	assert.Equal(t, 1, st.GameState.CurrentRound)
}

func TestRoomInfo(t *testing.T) {
	f := newFixture(t)
	f.seat(t)
	carol := f.connect("carol")

	f.dispatch(t, "carol", types.EvtGetRoomInfo, types.RoomRequest{RoomID: "abc123"})
	info := expect[types.RoomInfo](t, carol, types.EvtRoomInfo)
	assert.True(t, info.Exists)
	assert.Equal(t, "ABC123", info.RoomID)
	assert.Equal(t, 2, info.PlayersCount)
	assert.Equal(t, 2, info.MaxPlayers)
	assert.Equal(t, "ban", info.Phase)
	assert.ElementsMatch(t, []types.RosterEntry{{Name: "Alice", Side: "Blue"}, {Name: "Bob", Side: "Red"}}, info.Players)

	f.dispatch(t, "carol", types.EvtGetRoomInfo, types.RoomRequest{RoomID: "QQQ111"})
	assert.Equal(t, types.RoomInfo{Exists: false}, expect[types.RoomInfo](t, carol, types.EvtRoomInfo))

	_, ok := f.hub.Get("QQQ111")
	assert.False(t, ok, "room info must not create rooms")
}

func TestPingAndUnknownEvent(t *testing.T) {
	f := newFixture(t)
	c := f.connect("c")

	f.dispatch(t, "c", types.EvtPing, nil)
	assert.Equal(t, types.EvtPong, next(t, c).Event)

	f.dispatch(t, "c", "castSpell", struct{}{})
	assert.Equal(t, types.ErrInvalidRequest, expect[types.Error](t, c, types.EvtError).Kind)

	f.srv.Dispatch(context.Background(), "c", types.ClientMessage{Event: types.EvtBanItem, Data: json.RawMessage(`{"roomId": 5}`)})
	assert.Equal(t, types.ErrInvalidRequest, expect[types.ActionFailed](t, c, types.EvtActionFailed).Kind)
}

func TestRoomClosing_NotifiesMembers(t *testing.T) {
	f := newFixture(t)
	a, b := f.connect("a"), f.connect("b")

	f.srv.RoomClosing("ROOM01", []lobby.Member{{Conn: "a", Side: engine.SideBlue}, {Conn: "b", Side: engine.SideRed}}, "Room was idle for too long")

	for _, c := range []*client{a, b} {
		closed := expect[types.RoomClosed](t, c, types.EvtRoomClosed)
		assert.Equal(t, "ROOM01", closed.RoomID)
		assert.Equal(t, "Room was idle for too long", closed.Reason)
	}
}

func TestSend_DropsSlowClient(t *testing.T) {
	f := newFixture(t)
	dropped := make(chan struct{})
	c := f.srv.register("slow", func() { close(dropped) })

	for range outboxSize {
		f.srv.send("slow", types.EvtPong, struct{}{})
	}
	select {
	case <-dropped:
		t.Fatal("dropped before the outbox was full")
	default:
	}

	f.srv.send("slow", types.EvtPong, struct{}{})
	f.srv.send("slow", types.EvtPong, struct{}{})
	select {
	case <-dropped:
	case <-time.After(time.Second):
		t.Fatal("slow client was not dropped")
	}
	assert.Len(t, c.out, outboxSize)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want types.ErrorKind
	}{
		{lobby.ErrRoomFull, types.ErrRoomFull},
		{lobby.ErrSideTaken, types.ErrSideTaken},
		{lobby.ErrNameTaken, types.ErrNameTaken},
		{engine.ErrWrongPhase, types.ErrWrongPhase},
		{engine.ErrNotYourTurn, types.ErrNotYourTurn},
		{engine.ErrItemUnavailable, types.ErrItemUnavailable},
		{hub.ErrRoomNotFound, types.ErrRoomNotFound},
		{lobby.ErrRoomClosed, types.ErrRoomNotFound},
		{lobby.ErrNotInRoom, types.ErrRoomNotFound},
		{invalid("x"), types.ErrInvalidRequest},
		{context.DeadlineExceeded, types.ErrInternal},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, errorKind(tc.err), tc.err.Error())
	}
}
