package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeBus struct {
	mu    sync.Mutex
	chans map[string]chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{chans: make(map[string]chan []byte)}
}

func (b *fakeBus) channel(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.chans[name]
	if !ok {
		ch = make(chan []byte, 16)
		b.chans[name] = ch
	}
	return ch
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.channel(channel) <- payload
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return b.channel(channel), nil
}

func dialHub(t *testing.T) (*fakeBus, *websocket.Conn, func()) {
	t.Helper()

	bus := newFakeBus()
	hub := NewHub(bus, nil, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		cancel()
		t.Fatalf("dial: %v", err)
	}

	return bus, conn, func() {
		conn.Close()
		srv.Close()
		cancel()
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func TestHubHelloAndBroadcast(t *testing.T) {
	bus, conn, done := dialHub(t)
	defer done()

	hello := readFrame(t, conn)
	if hello["type"] != "hello" {
		t.Fatalf("first frame type = %v, want hello", hello["type"])
	}

	if err := bus.Publish(context.Background(), "markets", []byte(`{"type":"odds_updated"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ev := readFrame(t, conn)
	if ev["type"] != "odds_updated" {
		t.Fatalf("event type = %v, want odds_updated", ev["type"])
	}
}

func TestHubUnsubscribeFiltersChannel(t *testing.T) {
	bus, conn, done := dialHub(t)
	defer done()

	readFrame(t, conn) // hello

	frame := `{"action":"unsubscribe","channels":["bets"]}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The frame is applied by the read goroutine; give it a moment.
	time.Sleep(100 * time.Millisecond)

	bus.Publish(context.Background(), "bets", []byte(`{"type":"bet_placed"}`))
	bus.Publish(context.Background(), "settlements", []byte(`{"type":"market_resolved"}`))

	ev := readFrame(t, conn)
	if ev["type"] != "market_resolved" {
		t.Fatalf("event type = %v, want market_resolved (bets channel unsubscribed)", ev["type"])
	}
}
