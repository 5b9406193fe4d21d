package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/logger"
	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/gorilla/websocket"
)

type wsFrame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type wsHarness struct {
	t        *testing.T
	server   *httptest.Server
	registry *ChannelRegistry
	gateway  *Gateway
	verifier *CredentialVerifier
}

func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	log := logger.Discard()
	h := &wsHarness{t: t, registry: NewChannelRegistry(log), verifier: testVerifier()}
	h.gateway = NewGateway(h.registry, h.verifier, nil, log)
	h.server = httptest.NewServer(h.gateway)
	t.Cleanup(func() {
		_ = h.gateway.Shutdown(context.Background())
		h.server.Close()
	})
	return h
}

func (h *wsHarness) dial(token string) *websocket.Conn {
	h.t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		h.t.Fatalf("dial: %v", err)
	}
	h.t.Cleanup(func() { _ = conn.Close() })
	if f := readFrame(h.t, conn); f.Type != FrameWelcome {
		h.t.Fatalf("first frame = %s, want welcome", f.Type)
	}
	return conn
}

func (h *wsHarness) token(role models.Role, id uint) string {
	h.t.Helper()
	tok, err := h.verifier.Issue(role, id, "")
	if err != nil {
		h.t.Fatal(err)
	}
	return tok
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var f wsFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func subscribe(t *testing.T, conn *websocket.Conn, channel string) wsFrame {
	t.Helper()
	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "channel": channel}); err != nil {
		t.Fatal(err)
	}
	return readFrame(t, conn)
}

func TestGatewaySubscriptionPolicy(t *testing.T) {
	h := newWSHarness(t)
	guest := h.dial("")
	customer := h.dial(h.token(models.RoleCustomer, 7))
	admin := h.dial(h.token(models.RoleAdmin, 1))

	tests := []struct {
		name    string
		conn    *websocket.Conn
		channel string
		want    string
	}{
		{"guest public", guest, PublicChannel, FrameSubscribed},
		{"guest booking", guest, "booking:12", FrameSubscribed},
		{"guest user channel", guest, "user:7", FrameError},
		{"guest admins", guest, AdminChannel, FrameError},
		{"own user channel", customer, "user:7", FrameSubscribed},
		{"someone else's channel", customer, "user:8", FrameError},
		{"customer driver channel", customer, "driver:7", FrameError},
		{"admin admins", admin, AdminChannel, FrameSubscribed},
		{"unknown channel", admin, "lobby", FrameError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if f := subscribe(t, tt.conn, tt.channel); f.Type != tt.want {
				t.Fatalf("frame = %s %s, want %s", f.Type, f.Data, tt.want)
			}
		})
	}
}

func TestGatewayGuestsCannotPublish(t *testing.T) {
	h := newWSHarness(t)
	guest := h.dial("")
	subscribe(t, guest, "booking:3")

	if err := guest.WriteJSON(map[string]any{"type": "message", "channel": "booking:3", "message": "hi"}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, guest); f.Type != FrameError {
		t.Fatalf("frame = %s, want error", f.Type)
	}
}

func TestGatewayRelaysMessages(t *testing.T) {
	h := newWSHarness(t)
	customer := h.dial(h.token(models.RoleCustomer, 7))
	watcher := h.dial(h.token(models.RoleCustomer, 7))
	subscribe(t, customer, "user:7")
	subscribe(t, watcher, "user:7")

	if err := customer.WriteJSON(map[string]any{"type": "message", "channel": "user:7", "message": map[string]string{"text": "gate code 4411"}}); err != nil {
		t.Fatal(err)
	}
	f := readFrame(t, watcher)
	if f.Type != FrameMessage || !strings.Contains(string(f.Data), "4411") {
		t.Fatalf("relayed = %s %s", f.Type, f.Data)
	}
}

// A driver's bid reaches the customer's live connection through the fan-out.
func TestBidReachesCustomerSocket(t *testing.T) {
	h := newWSHarness(t)
	f := newFixture(t, 1)
	b := f.booking(t, 72*time.Hour)

	conn := h.dial(h.token(models.RoleCustomer, f.customer.ID))
	if fr := subscribe(t, conn, UserChannel(f.customer.ID)); fr.Type != FrameSubscribed {
		t.Fatalf("subscribe = %s", fr.Type)
	}

	l := NewBidLedger(f.store, DefaultBiddingRules(), NewFanout(h.registry, nil, nil, nil, logger.Discard()), logger.Discard())
	l.now = f.clock
	if _, _, err := l.Place(context.Background(), b.ID, f.drivers[0].ID, 925, "fragile"); err != nil {
		t.Fatal(err)
	}

	fr := readFrame(t, conn)
	if fr.Type != EventNewBid || fr.Channel != UserChannel(f.customer.ID) {
		t.Fatalf("frame = %s on %s", fr.Type, fr.Channel)
	}
	var evt BidEvent
	if err := json.Unmarshal(fr.Data, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Amount != 925 || evt.DriverID != f.drivers[0].ID {
		t.Fatalf("event = %+v", evt)
	}
}

func TestGatewayShutdownClosesConnections(t *testing.T) {
	h := newWSHarness(t)
	conn := h.dial("")
	if h.gateway.ConnectionCount() != 1 {
		t.Fatalf("connections = %d", h.gateway.ConnectionCount())
	}
	if err := h.gateway.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to be closed")
	}
	if h.gateway.ConnectionCount() != 0 {
		t.Fatalf("connections after shutdown = %d", h.gateway.ConnectionCount())
	}
}

// expectSilence fails if conn receives any frame within wait.
func expectSilence(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	var f wsFrame
	if err := conn.ReadJSON(&f); err == nil {
		t.Fatalf("unexpected frame %s on %s: %s", f.Type, f.Channel, f.Data)
	}
}

// Watchers of a booking see the bid without the bidder's identity; other
// drivers hear nothing.
func TestBidFanoutOverBookingChannel(t *testing.T) {
	h := newWSHarness(t)
	f := newFixture(t, 2)
	b := f.booking(t, 72*time.Hour)

	customer := h.dial(h.token(models.RoleCustomer, f.customer.ID))
	if fr := subscribe(t, customer, BookingChannel(b.ID)); fr.Type != FrameSubscribed {
		t.Fatalf("customer subscribe = %s", fr.Type)
	}
	rival := h.dial(h.token(models.RoleDriver, f.drivers[1].ID))
	if fr := subscribe(t, rival, DriverChannel(f.drivers[1].ID)); fr.Type != FrameSubscribed {
		t.Fatalf("driver subscribe = %s", fr.Type)
	}

	l := NewBidLedger(f.store, DefaultBiddingRules(), NewFanout(h.registry, nil, nil, nil, logger.Discard()), logger.Discard())
	l.now = f.clock
	if _, _, err := l.Place(context.Background(), b.ID, f.drivers[0].ID, 925, "fragile"); err != nil {
		t.Fatal(err)
	}

	fr := readFrame(t, customer)
	if fr.Type != EventNewBid || fr.Channel != BookingChannel(b.ID) {
		t.Fatalf("frame = %s on %s", fr.Type, fr.Channel)
	}
	var payload map[string]any
	if err := json.Unmarshal(fr.Data, &payload); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"driverId", "driverName", "vehiclePlate", "notes"} {
		if _, ok := payload[key]; ok {
			t.Fatalf("booking channel payload carries %s: %s", key, fr.Data)
		}
	}
	if payload["amount"] != 925.0 || payload["bidCount"] != 1.0 {
		t.Fatalf("payload = %s", fr.Data)
	}
	expectSilence(t, customer, 300*time.Millisecond)
	expectSilence(t, rival, 300*time.Millisecond)
}
