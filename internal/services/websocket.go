package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 16 * 1024
	sendQueueDepth = 256
)

// Frame types written by the gateway itself; domain events use the
// Event* constants.
const (
	FrameWelcome      = "welcome"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameError        = "error"
	FrameMessage      = "message"
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendQueueFull  = errors.New("send queue full")
	errChannelDenied  = errors.New("not allowed to subscribe to this channel")
	errUnknownChannel = errors.New("unknown channel")
)

type inboundFrame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Message json.RawMessage `json:"message,omitempty"`
}

type frameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Welcome is the first frame on every connection.
type Welcome struct {
	ConnectionID  string      `json:"connectionId"`
	Role          models.Role `json:"role"`
	UserID        uint        `json:"userId,omitempty"`
	Authenticated bool        `json:"authenticated"`
}

type relayedMessage struct {
	From    Principal       `json:"from"`
	Message json.RawMessage `json:"message"`
}

// Gateway upgrades HTTP requests to WebSocket connections and lets them
// subscribe to registry channels.
type Gateway struct {
	registry *ChannelRegistry
	verifier *CredentialVerifier
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[string]*Connection
	closed bool
}

// NewGateway builds a gateway. An empty or "*" origin list accepts any origin.
func NewGateway(registry *ChannelRegistry, verifier *CredentialVerifier, allowedOrigins []string, log *slog.Logger) *Gateway {
	g := &Gateway{
		registry: registry,
		verifier: verifier,
		log:      log,
		conns:    make(map[string]*Connection),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{"bearer"},
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	return g
}

// tokenFromRequest reads the credential from the Authorization header, the
// token query parameter or the "bearer, <token>" subprotocol pair.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	protocols := websocket.Subprotocols(r)
	for i, p := range protocols {
		if strings.EqualFold(p, "bearer") && i+1 < len(protocols) {
			return protocols[i+1]
		}
	}
	return ""
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	principal := g.verifier.VerifyOrGuest(tokenFromRequest(r))

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &Connection{
		id:        uuid.NewString(),
		principal: principal,
		ws:        ws,
		send:      make(chan []byte, sendQueueDepth),
		gw:        g,
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		_ = ws.Close()
		return
	}
	g.conns[c.id] = c
	g.mu.Unlock()

	g.log.Info("websocket connected", "connection_id", c.id, "role", principal.Role, "user_id", principal.UserID)

	c.emit(Event{Type: FrameWelcome, Data: Welcome{
		ConnectionID:  c.id,
		Role:          principal.Role,
		UserID:        principal.UserID,
		Authenticated: principal.Authenticated(),
	}})

	go c.writePump()
	go c.readPump()
}

// ConnectionCount reports the number of open connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *Gateway) remove(c *Connection) {
	g.registry.UnsubscribeAll(c)
	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()
}

// Shutdown closes every connection and refuses new ones.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	conns := make([]*Connection, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		if err := ctx.Err(); err != nil {
			return err
		}
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.close()
		g.remove(c)
	}
	return nil
}

// authorizeChannel applies the subscription policy. limited marks guests
// watching a booking; they may listen but never publish.
func authorizeChannel(p Principal, channel string) (limited bool, err error) {
	kind, rest, hasID := strings.Cut(channel, ":")
	if !hasID {
		switch {
		case channel == PublicChannel:
			return !p.Authenticated(), nil
		case strings.HasPrefix(channel, "admin"):
			if p.Role == models.RoleAdmin && p.Authenticated() {
				return false, nil
			}
			return false, errChannelDenied
		}
		return false, errUnknownChannel
	}

	if kind == "admin" || strings.HasPrefix(kind, "admin") {
		if p.Role == models.RoleAdmin && p.Authenticated() {
			return false, nil
		}
		return false, errChannelDenied
	}

	id, convErr := strconv.ParseUint(rest, 10, 64)
	if convErr != nil || id == 0 {
		return false, errUnknownChannel
	}

	switch kind {
	case "booking":
		return !p.Authenticated(), nil
	case "driver":
		if p.Role == models.RoleDriver && p.Authenticated() && uint(id) == p.UserID {
			return false, nil
		}
		return false, errChannelDenied
	case "user":
		if p.Authenticated() && uint(id) == p.UserID {
			return false, nil
		}
		return false, errChannelDenied
	}
	return false, errUnknownChannel
}

// Connection is one live WebSocket client. It is a registry Subscriber.
type Connection struct {
	id        string
	principal Principal
	ws        *websocket.Conn
	send      chan []byte
	gw        *Gateway

	mu     sync.Mutex
	closed bool
}

func (c *Connection) ID() string { return c.id }

// Send queues msg for the write pump. It never blocks and never panics on a
// closed connection. A full queue closes the connection.
func (c *Connection) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.closed = true
		close(c.send)
		return errSendQueueFull
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Connection) emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		c.gw.log.Error("marshal frame", "type", evt.Type, "error", err)
		return
	}
	_ = c.Send(data)
}

func (c *Connection) emitError(channel, code, message string) {
	c.emit(Event{Type: FrameError, Channel: channel, Data: frameError{Code: code, Message: message}})
}

// readPump pumps frames from the websocket connection into the registry.
func (c *Connection) readPump() {
	defer func() {
		c.gw.remove(c)
		c.close()
		_ = c.ws.Close()
		c.gw.log.Info("websocket disconnected", "connection_id", c.id)
	}()

	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.gw.log.Warn("websocket read error", "connection_id", c.id, "error", err)
			}
			return
		}
		c.handle(raw)
	}
}

func (c *Connection) handle(raw []byte) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.emitError("", "BAD_FRAME", "frame is not valid JSON")
		return
	}
	channel := strings.TrimSpace(f.Channel)

	switch f.Type {
	case "subscribe":
		limited, err := authorizeChannel(c.principal, channel)
		if err != nil {
			c.emitError(channel, "FORBIDDEN", err.Error())
			return
		}
		if !c.gw.registry.Subscribe(channel, c) {
			c.emitError(channel, "UNAVAILABLE", "server is shutting down")
			return
		}
		c.emit(Event{Type: FrameSubscribed, Channel: channel, Data: map[string]any{
			"limited":  limited,
			"channels": c.gw.registry.Channels(c),
		}})

	case "unsubscribe":
		c.gw.registry.Unsubscribe(channel, c)
		c.emit(Event{Type: FrameUnsubscribed, Channel: channel})

	case "message":
		limited, err := authorizeChannel(c.principal, channel)
		if err != nil {
			c.emitError(channel, "FORBIDDEN", err.Error())
			return
		}
		if limited || !c.principal.Authenticated() {
			c.emitError(channel, "FORBIDDEN", "guests cannot publish")
			return
		}
		if len(f.Message) == 0 || string(f.Message) == "null" {
			c.emitError(channel, "BAD_FRAME", "message is required")
			return
		}
		frame, err := json.Marshal(Event{
			Type:      FrameMessage,
			Channel:   channel,
			Data:      relayedMessage{From: c.principal, Message: f.Message},
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			c.emitError(channel, "BAD_FRAME", "message could not be encoded")
			return
		}
		c.gw.registry.Publish(channel, frame)

	default:
		c.emitError(channel, "BAD_FRAME", "unknown frame type "+strconv.Quote(f.Type))
	}
}

// writePump pumps queued frames to the websocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.gw.log.Warn("websocket write error", "connection_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
