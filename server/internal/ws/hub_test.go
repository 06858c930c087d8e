package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/hoopship/hoopship/server/internal/store"
	wsHub "github.com/hoopship/hoopship/server/internal/ws"
)

// --- helpers ----------------------------------------------------------------

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
// Returns the ws:// URL, the hub, and a cancel function.
func startHub(t *testing.T, st *store.Store) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(st)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var msg wsHub.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg
}

// waitCount polls hub.Count until it equals want.
func waitCount(t *testing.T, hub *wsHub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Count() = %d, want %d", hub.Count(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// --- tests ------------------------------------------------------------------

func TestHub_HelloOnConnect(t *testing.T) {
	st := store.New(0)
	if err := st.Create("/logs/a.log", []byte("x"), "", false); err != nil {
		t.Fatal(err)
	}
	wsURL, _, _ := startHub(t, st)

	msg := readMessage(t, dial(t, wsURL))
	if msg.Event != "hello" || msg.Files != 1 {
		t.Errorf("hello = %+v, want event=hello files=1", msg)
	}
}

func TestHub_StreamsWrites(t *testing.T) {
	st := store.New(0)
	wsURL, _, _ := startHub(t, st)
	conn := dial(t, wsURL)
	readMessage(t, conn) // hello

	if err := st.Create("/logs/a.log", []byte("one\n"), "hoop", false); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Append("/logs/a.log", []byte("two\n")); err != nil {
		t.Fatal(err)
	}

	created := readMessage(t, conn)
	if created.Event != "create" || created.Path != "/logs/a.log" || created.Bytes != 4 {
		t.Errorf("create message = %+v", created)
	}
	appended := readMessage(t, conn)
	if appended.Event != "append" || appended.Bytes != 4 || appended.Length != 8 {
		t.Errorf("append message = %+v", appended)
	}
}

func TestHub_PrefixFilter(t *testing.T) {
	st := store.New(0)
	wsURL, _, _ := startHub(t, st)
	conn := dial(t, wsURL+"?prefix=/logs/web")
	readMessage(t, conn) // hello

	for _, p := range []string{"/logs/db/x.log", "/logs/webapp/x.log", "/logs/web/x.log"} {
		if err := st.Create(p, []byte("x"), "", false); err != nil {
			t.Fatal(err)
		}
	}

	msg := readMessage(t, conn)
	if msg.Path != "/logs/web/x.log" {
		t.Errorf("first filtered message path = %q, want /logs/web/x.log", msg.Path)
	}
}

func TestHub_Count(t *testing.T) {
	st := store.New(0)
	wsURL, hub, _ := startHub(t, st)

	if hub.Count() != 0 {
		t.Fatalf("Count before connect = %d, want 0", hub.Count())
	}

	c1 := dial(t, wsURL)
	readMessage(t, c1)
	c2 := dial(t, wsURL)
	readMessage(t, c2)

	waitCount(t, hub, 2)
}

func TestHub_ClientDisconnect(t *testing.T) {
	st := store.New(0)
	wsURL, hub, _ := startHub(t, st)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitCount(t, hub, 1)

	conn.Close()
	waitCount(t, hub, 0)
}

func TestHub_CancelClosesConnections(t *testing.T) {
	st := store.New(0)
	wsURL, _, cancel := startHub(t, st)

	conn := dial(t, wsURL)
	readMessage(t, conn)

	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return // connection closed as expected
		}
	}
}

func TestHub_NonWebSocketRequest(t *testing.T) {
	hub := wsHub.New(store.New(0))
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
