package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/ban-pick-server/internal/hub"
	"github.com/DoyleJ11/ban-pick-server/pkg/types"
)

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func write(t *testing.T, ctx context.Context, c *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(types.ClientMessage{Event: event, Data: raw})
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, payload))
}

func read(t *testing.T, ctx context.Context, c *websocket.Conn) inbound {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var msg inbound
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandler_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Connection goroutines outlive the test body, so no zaptest here.
	h := hub.NewHub(context.Background(), shortSchedule(), hub.Options{CodeLength: 6, IdleTimeout: time.Hour}, zap.NewNop())
	defer h.Shutdown()
	srv := NewServer(h, Options{RoomIDLength: 6, NameMaxLength: 20}, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	alice := dial(t, ctx, ts.URL)
	greet := read(t, ctx, alice)
	require.Equal(t, types.EvtConnected, greet.Event)
	var hello types.Connected
	require.NoError(t, json.Unmarshal(greet.Data, &hello))
	assert.NotEmpty(t, hello.ID)

	write(t, ctx, alice, types.EvtPing, struct{}{})
	assert.Equal(t, types.EvtPong, read(t, ctx, alice).Event)

	require.NoError(t, alice.Write(ctx, websocket.MessageText, []byte("{not json")))
	assert.Equal(t, types.EvtError, read(t, ctx, alice).Event)

	write(t, ctx, alice, types.EvtJoinRoom, join("Alice", "Blue"))
	assert.Equal(t, types.EvtJoinedRoom, read(t, ctx, alice).Event)
	assert.Equal(t, types.EvtGameStateUpdate, read(t, ctx, alice).Event)

	bob := dial(t, ctx, ts.URL)
	assert.Equal(t, types.EvtConnected, read(t, ctx, bob).Event)
	write(t, ctx, bob, types.EvtJoinRoom, join("Bob", "Red"))
	assert.Equal(t, types.EvtJoinedRoom, read(t, ctx, bob).Event)
	assert.Equal(t, types.EvtGameStateUpdate, read(t, ctx, bob).Event)

	msg := read(t, ctx, alice)
	require.Equal(t, types.EvtGameStateUpdate, msg.Event)
	var st stateUpdate
	require.NoError(t, json.Unmarshal(msg.Data, &st))
	assert.Equal(t, "ban", string(st.GameState.Phase))
	assert.Equal(t, 2, srv.Clients())

	// Bob going away is an implicit leave.
	require.NoError(t, bob.Close(websocket.StatusNormalClosure, ""))
	msg = read(t, ctx, alice)
	require.Equal(t, types.EvtGameStateUpdate, msg.Event)
	require.NoError(t, json.Unmarshal(msg.Data, &st))
	assert.Equal(t, "waiting", string(st.GameState.Phase))
	assert.Equal(t, 1, st.GameState.PlayersCount)

	require.NoError(t, alice.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool { return h.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
