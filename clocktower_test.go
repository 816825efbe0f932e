package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/clocktower/games/clocktower"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverFrame struct {
	Type          string          `json:"type"`
	ID            int64           `json:"id"`
	OK            bool            `json:"ok"`
	GameID        string          `json:"gameId"`
	Defaults      []string        `json:"defaults"`
	SelectedRoles []string        `json:"selectedRoles"`
	Message       string          `json:"message"`
	ConnectionID  string          `json:"connectionId"`
	State         clocktower.View `json:"state"`
}

type testClient struct {
	t      *testing.T
	conn   *websocket.Conn
	connID string
	nextID int64
	states []clocktower.View
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	return newTestServerWith(t, &Config{})
}

func newTestServerWith(t *testing.T, cfg *Config) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg.logger = zerolog.Nop()
	errs := make(chan error, 8)

	mux := httprouter.New()
	registerClocktowerGame(ctx, cfg, "/clocktower", mux, clocktower.DefaultCatalog(), errs)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return ts
}

func dial(t *testing.T, ts *httptest.Server) *testClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/clocktower/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c := &testClient{t: t, conn: conn}

	hello := c.read()
	require.Equal(t, "hello", hello.Type)
	require.NotEmpty(t, hello.ConnectionID)
	c.connID = hello.ConnectionID

	return c
}

func (c *testClient) read() serverFrame {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var f serverFrame
	require.NoError(c.t, c.conn.ReadJSON(&f))
	return f
}

// request sends one frame and returns its ack, keeping any state pushes that
// arrive first.
func (c *testClient) request(typ string, payload any) serverFrame {
	c.t.Helper()

	c.nextID++
	id := c.nextID

	require.NoError(c.t, c.conn.WriteJSON(map[string]any{
		"id":      id,
		"type":    typ,
		"payload": payload,
	}))

	for {
		f := c.read()
		switch f.Type {
		case "game:state":
			c.states = append(c.states, f.State)
		case "ack":
			require.Equal(c.t, id, f.ID)
			return f
		}
	}
}

// waitState returns the first pushed view matching ok, reading more frames as
// needed.
func (c *testClient) waitState(ok func(clocktower.View) bool) clocktower.View {
	c.t.Helper()

	for _, v := range c.states {
		if ok(v) {
			return v
		}
	}
	for {
		f := c.read()
		if f.Type != "game:state" {
			continue
		}
		c.states = append(c.states, f.State)
		if ok(f.State) {
			return f.State
		}
	}
}

func createGame(t *testing.T, host *testClient) string {
	t.Helper()

	ack := host.request("game:create", map[string]any{
		"hostName":      "Alice",
		"selectedRoles": []string{"Imp", "Baron"},
	})
	require.True(t, ack.OK, ack.Message)
	return ack.GameID
}

func TestClocktower_CreateAndJoin(t *testing.T) {
	ts := newTestServer(t)
	host := dial(t, ts)

	ack := host.request("game:create", map[string]any{
		"hostName":      "Alice",
		"selectedRoles": []string{"Imp", "Baron"},
	})
	require.True(t, ack.OK)
	assert.Len(t, ack.GameID, clocktower.CodeLength)
	assert.Len(t, ack.Defaults, 17)

	player := dial(t, ts)
	joined := player.request("game:join", map[string]any{
		"gameId": strings.ToLower(ack.GameID),
		"name":   "Bob",
	})
	require.True(t, joined.OK, joined.Message)
	assert.Equal(t, ack.GameID, joined.GameID)

	playerView := player.waitState(func(v clocktower.View) bool { return len(v.Players) == 2 })
	assert.Equal(t, []string{"Imp", "Baron"}, playerView.SelectedRoles)
	assert.Equal(t, host.connID, playerView.HostConnectionID)
	assert.Empty(t, playerView.Log)

	hostView := host.waitState(func(v clocktower.View) bool { return len(v.Players) == 2 })
	require.NotEmpty(t, hostView.Log)
	assert.Equal(t, "Bob joined the game.", hostView.Log[len(hostView.Log)-1].Text)
}

func TestClocktower_JoinUnknownGame(t *testing.T) {
	ts := newTestServer(t)
	c := dial(t, ts)

	ack := c.request("game:join", map[string]any{"gameId": "zzzzzz", "name": "Bob"})
	assert.False(t, ack.OK)
	assert.Equal(t, "Game not found.", ack.Message)
}

func TestClocktower_HostOnlyActions(t *testing.T) {
	ts := newTestServer(t)
	host := dial(t, ts)
	code := createGame(t, host)

	player := dial(t, ts)
	require.True(t, player.request("game:join", map[string]any{"gameId": code, "name": "Bob"}).OK)

	for _, typ := range []string{"game:start", "game:nextPhase", "game:randomAssignRoles"} {
		ack := player.request(typ, map[string]any{"gameId": code})
		assert.False(t, ack.OK, typ)
		assert.Equal(t, "Host only action.", ack.Message, typ)
	}

	ack := host.request("game:start", map[string]any{"gameId": code})
	assert.True(t, ack.OK)

	v := player.waitState(func(v clocktower.View) bool { return v.Status == clocktower.StatusInProgress })
	assert.Equal(t, clocktower.PhaseNight, v.Phase)
	assert.Equal(t, 1, v.Day)
}

func TestClocktower_HostOperations(t *testing.T) {
	ts := newTestServer(t)
	host := dial(t, ts)
	code := createGame(t, host)

	pool := host.request("game:randomizeRolePool", map[string]any{"gameId": code, "playerCount": 5})
	require.True(t, pool.OK)
	assert.Len(t, pool.SelectedRoles, 5)

	assert.True(t, host.request("game:updateRoles", map[string]any{
		"gameId":        code,
		"selectedRoles": []string{"Chef", " ", "Imp"},
	}).OK)

	v := host.waitState(func(v clocktower.View) bool {
		return len(v.SelectedRoles) == 2 && v.SelectedRoles[0] == "Chef"
	})
	assert.Equal(t, []string{"Chef", "Imp"}, v.SelectedRoles)

	alice := v.Players[0].ID
	assert.True(t, host.request("game:assignRole", map[string]any{"gameId": code, "playerId": alice, "role": "Imp"}).OK)
	assert.True(t, host.request("game:toggleAlive", map[string]any{"gameId": code, "playerId": alice}).OK)

	missing := host.request("game:toggleAlive", map[string]any{"gameId": code, "playerId": "NOPE"})
	assert.Equal(t, "Player not found.", missing.Message)

	empty := host.request("game:addLog", map[string]any{"gameId": code, "text": "   "})
	assert.Equal(t, "Log entry cannot be empty.", empty.Message)

	assert.True(t, host.request("game:addLog", map[string]any{"gameId": code, "text": "Poisoned the Chef"}).OK)

	v = host.waitState(func(v clocktower.View) bool {
		return len(v.Log) > 0 && v.Log[len(v.Log)-1].Text == "Poisoned the Chef"
	})
	assert.Equal(t, "Imp", v.Players[0].Role)
	assert.False(t, v.Players[0].Alive)
}

func TestClocktower_HostTransferOnDisconnect(t *testing.T) {
	ts := newTestServer(t)
	host := dial(t, ts)
	code := createGame(t, host)

	bob := dial(t, ts)
	require.True(t, bob.request("game:join", map[string]any{"gameId": code, "name": "Bob"}).OK)
	carol := dial(t, ts)
	require.True(t, carol.request("game:join", map[string]any{"gameId": code, "name": "Carol"}).OK)

	require.NoError(t, host.conn.Close())

	v := bob.waitState(func(v clocktower.View) bool { return v.HostConnectionID == bob.connID })
	assert.Equal(t, "Bob", v.HostName)
	assert.False(t, v.Players[0].Connected)
	assert.NotEmpty(t, v.Log)

	cv := carol.waitState(func(v clocktower.View) bool { return v.HostConnectionID == bob.connID })
	assert.Empty(t, cv.Log)

	assert.True(t, bob.request("game:start", map[string]any{"gameId": code}).OK)
}

func TestClocktower_BadFrames(t *testing.T) {
	ts := newTestServer(t)
	c := dial(t, ts)

	ack := c.request("game:bogus", nil)
	assert.False(t, ack.OK)
	assert.Equal(t, "Unknown request type.", ack.Message)

	ack = c.request("game:start", map[string]any{"gameId": 5})
	assert.False(t, ack.OK)
	assert.Equal(t, "Malformed request.", ack.Message)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	f := c.read()
	assert.Equal(t, "ack", f.Type)
	assert.False(t, f.OK)
	assert.Equal(t, "Malformed request.", f.Message)
}

func TestClocktower_QRCode(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/clocktower/qr/NOPE22")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	host := dial(t, ts)
	code := createGame(t, host)

	resp, err = http.Get(ts.URL + "/clocktower/qr/" + strings.ToLower(code))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "\x89PNG"))
}

func TestClocktower_RoleCatalog(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/clocktower/roles")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var catalog clocktower.Catalog
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&catalog))
	assert.Len(t, catalog.Names, 17)
	assert.Equal(t, "Demon", catalog.Info["Imp"].Team)
}

func TestAckFailure(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{clocktower.ErrSessionNotFound, "Game not found."},
		{clocktower.ErrNotHost, "Host only action."},
		{clocktower.ErrNoPlayers, "No players to assign roles."},
		{clocktower.ErrParticipantNotFound, "Player not found."},
		{clocktower.ErrEmptyEntry, "Log entry cannot be empty."},
		{fmt.Errorf("wrapped: %w", clocktower.ErrNotHost), "Host only action."},
		{errors.New("disk on fire"), "Something went wrong."},
	}

	for _, tt := range tests {
		ack := ackFailure(7, tt.err)
		assert.Equal(t, "ack", ack.Type)
		assert.Equal(t, int64(7), ack.ID)
		assert.False(t, ack.OK)
		assert.Equal(t, tt.want, ack.Message, tt.err.Error())
	}
}

func TestClocktower_StalledWriterStillDisconnects(t *testing.T) {
	ts := newTestServerWith(t, &Config{writeTimeout: 200 * time.Millisecond})
	host := dial(t, ts)
	code := createGame(t, host)

	bob := dial(t, ts)
	require.True(t, bob.request("game:join", map[string]any{"gameId": code, "name": "Bob"}).OK)
	host.waitState(func(v clocktower.View) bool { return len(v.Players) == 2 })

	// The host keeps sending but never reads, so its pushes back up until
	// the server's writes time out.
	text := strings.Repeat("x", 16<<10)
	go func() {
		for i := range 1000 {
			err := host.conn.WriteJSON(map[string]any{
				"id":      i + 100,
				"type":    "game:addLog",
				"payload": map[string]any{"gameId": code, "text": text},
			})
			if err != nil {
				return
			}
		}
	}()

	v := bob.waitState(func(v clocktower.View) bool { return v.HostConnectionID == bob.connID })
	assert.Equal(t, "Bob", v.HostName)
	assert.False(t, v.Players[0].Connected)
}

func TestClocktower_SilentClientTimesOut(t *testing.T) {
	ts := newTestServerWith(t, &Config{
		pingInterval: 100 * time.Millisecond,
		pongTimeout:  500 * time.Millisecond,
	})
	host := dial(t, ts)
	code := createGame(t, host)

	bob := dial(t, ts)
	require.True(t, bob.request("game:join", map[string]any{"gameId": code, "name": "Bob"}).OK)
	host.waitState(func(v clocktower.View) bool { return len(v.Players) == 2 })

	// From here the host stops reading, so it never answers pings. Bob keeps
	// reading and stays connected.
	v := bob.waitState(func(v clocktower.View) bool { return v.HostConnectionID == bob.connID })
	assert.Equal(t, "Bob", v.HostName)
	assert.False(t, v.Players[0].Connected)
	assert.True(t, v.Players[1].Connected)

	assert.True(t, bob.request("game:start", map[string]any{"gameId": code}).OK)
}
