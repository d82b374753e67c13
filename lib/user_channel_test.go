package lib

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
	"github.com/CaeliumHQ/caelium-next/lib/conf"
	"github.com/gorilla/websocket"
)

type userBackend struct {
	server *httptest.Server

	lock sync.Mutex
	conn *websocket.Conn
}

func newUserBackend(t *testing.T) *userBackend {
	b := &userBackend{}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/user/tok/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.lock.Lock()
		b.conn = conn
		b.lock.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *userBackend) open(t *testing.T, signals SignalSink) *UserChannel {
	config := conf.Default()
	config.WSHost = "ws" + strings.TrimPrefix(b.server.URL, "http")
	u, err := OpenUserChannel(UserChannelConfig{
		Token:   "tok",
		Config:  config,
		Signals: signals,
	})
	if err != nil {
		t.Fatal("OpenUserChannel failed:", err)
	}
	t.Cleanup(func() { u.Close() })
	return u
}

func (b *userBackend) push(t *testing.T, envelope interface{}) {
	var conn *websocket.Conn
	deadline := time.Now().Add(time.Second)
	for conn == nil {
		b.lock.Lock()
		conn = b.conn
		b.lock.Unlock()
		if conn == nil {
			if time.Now().After(deadline) {
				t.Fatal("No client connected")
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	if err := conn.WriteJSON(envelope); err != nil {
		t.Fatal("push failed:", err)
	}
}

func TestUserChannelPresence(t *testing.T) {
	b := newUserBackend(t)
	u := b.open(t, nil)
	b.push(t, cae.Presence{Category: cae.CategoryPresence, Sender: 2, Online: true})
	waitFor(t, "bob online", func() bool {
		return u.Presences().IsOnline(2)
	})
	away := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.push(t, cae.Presence{Category: cae.CategoryPresence, Sender: 2, Online: false, LastSeen: away})
	waitFor(t, "bob offline", func() bool {
		return !u.Presences().IsOnline(2)
	})
	if at, ok := u.Presences().LastSeen(2); !ok || !at.Equal(away) {
		t.Fatal("Going offline should record the last seen time:", at)
	}
}

func TestUserChannelIncomingCall(t *testing.T) {
	b := newUserBackend(t)
	signals := NewSignals(time.Minute)
	defer signals.Stop()
	b.open(t, signals)
	b.push(t, cae.IncomingCall{Category: cae.CategoryIncomingCall, ChatID: 1, Caller: cae.User{ID: 2, Name: "bob"}})
	waitFor(t, "the ring", func() bool {
		return signals.IncomingCall() != nil
	})
	if signals.IncomingCall().Caller.ID != 2 {
		t.Fatal("The alert should carry the caller:", signals.IncomingCall())
	}
}

func TestUserChannelCallSignalPassthrough(t *testing.T) {
	b := newUserBackend(t)
	signals := NewSignals(time.Minute)
	defer signals.Stop()
	b.open(t, signals)
	payload, _ := json.Marshal(map[string]string{"candidate": "udp"})
	b.push(t, cae.CallSignal{Category: cae.CategoryIceCandidate, CallID: "c1", Payload: payload})
	select {
	case in := <-signals.Calls():
		sig, ok := in.(*cae.CallSignal)
		if !ok || sig.CallID != "c1" {
			t.Fatal("Unexpected envelope on Calls:", in)
		}
	case <-time.After(time.Second):
		t.Fatal("The candidate never passed through")
	}
}

func TestUserChannelClose(t *testing.T) {
	b := newUserBackend(t)
	u := b.open(t, nil)
	if !u.Open() {
		t.Fatal("A fresh channel should be open")
	}
	u.Close()
	if u.Open() {
		t.Fatal("A closed channel should not report open")
	}
}
