// Clocktower session sync
//
// A storyteller hosts a game and shares its code; players join from their own
// devices and everyone is kept in sync over a single websocket per browser.
//
// Features:
// - One websocket per client at /path/ws; the game is named in each request
// - Requests carry an id and are answered with a matching ack
// - Every successful change pushes a fresh game:state to each connected player
// - The event log is only ever sent to the current host
// - Host authority moves to the next connected player when the host drops
// - Games optionally reaped after a configurable idle timeout
// - QR code per game at /path/qr/:gameid, backed by go-qrcode
// - Role catalog served as JSON at /path/roles

package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Seednode/clocktower/games/clocktower"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	sendBuffer     = 32
	maxMessageSize = 64 << 10
	qrSize         = 320

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 60 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// Messages coming from clients
type clientFrame struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type createRequest struct {
	HostName      string   `json:"hostName"`
	SelectedRoles []string `json:"selectedRoles"`
}

type joinRequest struct {
	GameID string `json:"gameId"`
	Name   string `json:"name"`
}

type gameRequest struct {
	GameID string `json:"gameId"`
}

type rolesRequest struct {
	GameID        string   `json:"gameId"`
	SelectedRoles []string `json:"selectedRoles"`
}

type poolRequest struct {
	GameID      string `json:"gameId"`
	PlayerCount int    `json:"playerCount"`
}

type playerRequest struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

type assignRoleRequest struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	Role     string `json:"role"`
}

type logRequest struct {
	GameID string `json:"gameId"`
	Text   string `json:"text"`
}

// Messages sent to clients
type helloMessage struct {
	Type         string `json:"type"` // "hello"
	ConnectionID string `json:"connectionId"`
}

type ackMessage struct {
	Type          string   `json:"type"` // "ack"
	ID            int64    `json:"id"`
	OK            bool     `json:"ok"`
	GameID        string   `json:"gameId,omitempty"`
	Defaults      []string `json:"defaults,omitempty"`
	SelectedRoles []string `json:"selectedRoles,omitempty"`
	Message       string   `json:"message,omitempty"`
}

type stateMessage struct {
	Type  string          `json:"type"` // "game:state"
	State clocktower.View `json:"state"`
}

var (
	errMalformed   = errors.New("malformed request")
	errUnknownType = errors.New("unknown request type")
)

func ackFailure(id int64, err error) ackMessage {
	msg := "Something went wrong."

	switch {
	case errors.Is(err, clocktower.ErrSessionNotFound):
		msg = "Game not found."
	case errors.Is(err, clocktower.ErrNotHost):
		msg = "Host only action."
	case errors.Is(err, clocktower.ErrNoPlayers):
		msg = "No players to assign roles."
	case errors.Is(err, clocktower.ErrParticipantNotFound):
		msg = "Player not found."
	case errors.Is(err, clocktower.ErrEmptyEntry):
		msg = "Log entry cannot be empty."
	case errors.Is(err, errMalformed):
		msg = "Malformed request."
	case errors.Is(err, errUnknownType):
		msg = "Unknown request type."
	}

	return ackMessage{Type: "ack", ID: id, Message: msg}
}

func ackSuccess(id int64) ackMessage {
	return ackMessage{Type: "ack", ID: id, OK: true}
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var req T
	if len(raw) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, errMalformed
	}
	return req, nil
}

type Client struct {
	conn   *websocket.Conn
	send   chan any
	done   chan struct{} // closed when readPump exits
	dead   chan struct{} // closed when writePump exits
	connID string
}

// enqueue blocks until the frame is buffered or either pump has stopped.
func (c *Client) enqueue(msg any) {
	select {
	case c.send <- msg:
	case <-c.done:
	case <-c.dead:
	}
}

// clocktowerServer routes websocket frames to the session store and delivers
// the store's pushes back to the right sockets.
type clocktowerServer struct {
	cfg   *Config
	store *clocktower.Store

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	mu      sync.RWMutex
	clients map[string]*Client
}

func newClocktowerServer(cfg *Config) *clocktowerServer {
	return &clocktowerServer{
		cfg:          cfg,
		pingInterval: cmp.Or(cfg.pingInterval, defaultPingInterval),
		pongTimeout:  cmp.Or(cfg.pongTimeout, defaultPongTimeout),
		writeTimeout: cmp.Or(cfg.writeTimeout, defaultWriteTimeout),
		clients:      make(map[string]*Client),
	}
}

// Push implements clocktower.Pusher. A client whose buffer is full misses
// this frame; the next mutation brings it up to date.
func (srv *clocktowerServer) Push(connID string, view clocktower.View) {
	srv.mu.RLock()
	c, ok := srv.clients[connID]
	srv.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case c.send <- stateMessage{Type: "game:state", State: view}:
	default:
		logf(srv.cfg, "GAME: Dropped state for slow client %s in %s", connID, view.GameID)
	}
}

func (srv *clocktowerServer) register(c *Client) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.clients[c.connID] = c
}

func (srv *clocktowerServer) unregister(c *Client) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	delete(srv.clients, c.connID)
}

// handle applies one client request and returns its ack.
func (srv *clocktowerServer) handle(connID string, frame clientFrame) ackMessage {
	var (
		ack = ackSuccess(frame.ID)
		err error
	)

	switch frame.Type {
	case "game:create":
		var req createRequest
		if req, err = decodePayload[createRequest](frame.Payload); err != nil {
			break
		}
		var sess *clocktower.Session
		if sess, err = srv.store.Create(connID, req.HostName, req.SelectedRoles); err != nil {
			break
		}
		ack.GameID = sess.Code()
		ack.Defaults = srv.store.Catalog().Names
	case "game:join":
		var req joinRequest
		if req, err = decodePayload[joinRequest](frame.Payload); err != nil {
			break
		}
		var sess *clocktower.Session
		if sess, err = srv.store.Join(req.GameID, connID, req.Name); err != nil {
			break
		}
		ack.GameID = sess.Code()
	case "game:updateRoles":
		var req rolesRequest
		if req, err = decodePayload[rolesRequest](frame.Payload); err != nil {
			break
		}
		err = srv.store.UpdateRoles(req.GameID, connID, req.SelectedRoles)
	case "game:randomizeRolePool":
		var req poolRequest
		if req, err = decodePayload[poolRequest](frame.Payload); err != nil {
			break
		}
		ack.SelectedRoles, err = srv.store.RandomizeRolePool(req.GameID, connID, req.PlayerCount)
	case "game:randomAssignRoles":
		var req gameRequest
		if req, err = decodePayload[gameRequest](frame.Payload); err != nil {
			break
		}
		err = srv.store.RandomAssignRoles(req.GameID, connID)
	case "game:start":
		var req gameRequest
		if req, err = decodePayload[gameRequest](frame.Payload); err != nil {
			break
		}
		err = srv.store.Start(req.GameID, connID)
	case "game:nextPhase":
		var req gameRequest
		if req, err = decodePayload[gameRequest](frame.Payload); err != nil {
			break
		}
		err = srv.store.NextPhase(req.GameID, connID)
	case "game:toggleAlive":
		var req playerRequest
		if req, err = decodePayload[playerRequest](frame.Payload); err != nil {
			break
		}
		err = srv.store.ToggleAlive(req.GameID, connID, req.PlayerID)
	case "game:assignRole":
		var req assignRoleRequest
		if req, err = decodePayload[assignRoleRequest](frame.Payload); err != nil {
			break
		}
		err = srv.store.AssignRole(req.GameID, connID, req.PlayerID, req.Role)
	case "game:addLog":
		var req logRequest
		if req, err = decodePayload[logRequest](frame.Payload); err != nil {
			break
		}
		err = srv.store.AddLogEntry(req.GameID, connID, req.Text)
	default:
		err = errUnknownType
	}

	if err != nil {
		logf(srv.cfg, "GAME: Rejected %q from %s: %v", frame.Type, connID, err)
		return ackFailure(frame.ID, err)
	}

	return ack
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (srv *clocktowerServer) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(srv.cfg, "GAME: Upgrade failed for %s: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn:   conn,
			send:   make(chan any, sendBuffer),
			done:   make(chan struct{}),
			dead:   make(chan struct{}),
			connID: uuid.New().String(),
		}

		srv.register(client)

		logf(srv.cfg, "GAME: Connected %s as %s", realIP(r), client.connID)

		go srv.writePump(client)

		client.enqueue(helloMessage{Type: "hello", ConnectionID: client.connID})

		srv.readPump(client)
	}
}

func (srv *clocktowerServer) readPump(c *Client) {
	defer func() {
		srv.unregister(c)
		close(c.done)
		srv.store.Disconnect(c.connID)
		_ = c.conn.Close()

		logf(srv.cfg, "GAME: Disconnected %s", c.connID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(srv.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(srv.pongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.enqueue(ackFailure(0, errMalformed))
			continue
		}

		c.enqueue(srv.handle(c.connID, frame))
	}
}

// writePump closing the conn on exit fails the pending read, so readPump
// always gets to run Store.Disconnect.
func (srv *clocktowerServer) writePump(c *Client) {
	ticker := time.NewTicker(srv.pingInterval)
	defer func() {
		ticker.Stop()
		close(c.dead)
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(srv.writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(srv.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// qrHandler generates a PNG QR code that opens the join page for a game.
func (srv *clocktowerServer) qrHandler(path string, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		sess, ok := srv.store.Lookup(ps.ByName("gameid"))
		if !ok {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}

		scheme := srv.cfg.scheme()
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + srv.cfg.prefix + path + "?game=" + sess.Code()

		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(srv.cfg, w)

		written, err := w.Write(png)
		if err != nil {
			errs <- err

			return
		}

		logf(srv.cfg, "SERVE: QR code for %s (%s) to %s in %s",
			sess.Code(),
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func (srv *clocktowerServer) rolesHandler(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		body, err := json.Marshal(srv.store.Catalog())
		if err != nil {
			http.Error(w, "encoding failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		securityHeaders(srv.cfg, w)

		written, err := w.Write(body)
		if err != nil {
			errs <- err

			return
		}

		logf(srv.cfg, "SERVE: Role catalog (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func registerClocktowerGame(ctx context.Context, cfg *Config, path string, mux *httprouter.Router, catalog clocktower.Catalog, errs chan<- error) *clocktowerServer {
	srv := newClocktowerServer(cfg)
	srv.store = clocktower.NewStore(catalog,
		clocktower.WithLogger(cfg.logger.With().Str("component", "sessions").Logger()),
		clocktower.WithPusher(srv),
	)

	if cfg.sessionTimeout > 0 {
		go srv.store.RunReaper(ctx, cfg.sessionTimeout)
	}

	mux.GET(cfg.prefix+path+"/ws", srv.serveWS())

	mux.GET(cfg.prefix+path+"/qr/:gameid", srv.qrHandler(path, errs))

	mux.GET(cfg.prefix+path+"/roles", srv.rolesHandler(errs))

	return srv
}
