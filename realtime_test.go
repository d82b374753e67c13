package main

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
	"github.com/gorilla/websocket"
)

func wsBase() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialChat(t *testing.T, id cae.ChatID, token string) *websocket.Conn {
	url := fmt.Sprintf("%s/ws/chat/%d/%s/", wsBase(), id, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal("Error dialling chat socket:", err)
	}
	t.Cleanup(func() { conn.Close() })
	//give the handler a beat to register its subscription
	time.Sleep(50 * time.Millisecond)
	return conn
}

func dialUser(t *testing.T, token string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(wsBase()+"/ws/user/"+token+"/", nil)
	if err != nil {
		t.Fatal("Error dialling user socket:", err)
	}
	t.Cleanup(func() { conn.Close() })
	time.Sleep(50 * time.Millisecond)
	return conn
}

//readUntil skims a socket until an envelope satisfies match, failing on
//timeout. Sockets legitimately carry interleaved broadcasts, so tests can't
//assume the next frame is theirs.
func readUntil(t *testing.T, conn *websocket.Conn, what string, match func(map[string]interface{}) bool) map[string]interface{} {
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var envelope map[string]interface{}
		if err := conn.ReadJSON(&envelope); err != nil {
			t.Fatalf("Never received %s: %v", what, err)
		}
		if match(envelope) {
			return envelope
		}
	}
}

func TestChatSocketBadToken(t *testing.T) {
	once.Do(setup)
	_, _, err := websocket.DefaultDialer.Dial(wsBase()+"/ws/chat/1/not-a-token/", nil)
	if err == nil {
		t.Fatal("A bad token should refuse the handshake")
	}
}

func TestChatSocketNotParticipant(t *testing.T) {
	once.Do(setup)
	relay.store.AddToken("carol-token", 3)
	_, _, err := websocket.DefaultDialer.Dial(wsBase()+"/ws/chat/1/carol-token/", nil)
	if err == nil {
		t.Fatal("A non-participant should refuse the handshake")
	}
}

func TestTextMessageFanout(t *testing.T) {
	once.Do(setup)
	alice := dialChat(t, 1, "alice-token")
	bob := dialChat(t, 1, "bob-token")

	err := alice.WriteJSON(map[string]interface{}{
		"category":       "text_message",
		"message":        "hello bob",
		"type":           "txt",
		"chat_id":        1,
		"correlation_id": "corr-123",
	})
	if err != nil {
		t.Fatal("Error sending:", err)
	}
	isOurs := func(e map[string]interface{}) bool {
		return e["category"] == "new_message" && e["content"] == "hello bob"
	}
	got := readUntil(t, bob, "bob's copy", isOurs)
	if got["sender"] != float64(1) {
		t.Fatal("The broadcast should carry the sender:", got)
	}
	if got["chat"] != float64(1) {
		t.Fatal("The broadcast should carry the conversation:", got)
	}
	echo := readUntil(t, alice, "alice's confirmation", isOurs)
	if echo["correlation_id"] != "corr-123" {
		t.Fatal("The confirmation should echo the correlation id:", echo)
	}
	if echo["id"] == nil || echo["id"] == float64(0) {
		t.Fatal("The confirmation should carry the persisted id:", echo)
	}
}

func TestTypingStampedWithSender(t *testing.T) {
	once.Do(setup)
	alice := dialChat(t, 1, "alice-token")
	bob := dialChat(t, 1, "bob-token")

	//clients don't stamp their own identity; the relay does
	err := bob.WriteJSON(map[string]interface{}{
		"category": "typing",
		"chat_id":  1,
		"typed":    "hel",
	})
	if err != nil {
		t.Fatal("Error sending:", err)
	}
	got := readUntil(t, alice, "the typing envelope", func(e map[string]interface{}) bool {
		return e["category"] == "typing" && e["typed"] == "hel"
	})
	if got["sender"] != float64(2) {
		t.Fatal("The relay should stamp the sender:", got)
	}
}

func TestCallSignalling(t *testing.T) {
	once.Do(setup)
	alice := dialChat(t, 1, "alice-token")
	aliceGlobal := dialUser(t, "alice-token")
	bob := dialChat(t, 1, "bob-token")

	err := bob.WriteJSON(map[string]interface{}{
		"category": "offer",
		"call_id":  "call-1",
		"payload":  map[string]string{"sdp": "v=0"},
	})
	if err != nil {
		t.Fatal("Error sending:", err)
	}
	got := readUntil(t, alice, "the offer", func(e map[string]interface{}) bool {
		return e["category"] == "offer"
	})
	if got["call_id"] != "call-1" || got["sender"] != float64(2) {
		t.Fatal("Unexpected offer envelope:", got)
	}
	ring := readUntil(t, aliceGlobal, "the incoming call", func(e map[string]interface{}) bool {
		return e["category"] == "incoming_call"
	})
	caller, _ := ring["caller"].(map[string]interface{})
	if caller == nil || caller["id"] != float64(2) {
		t.Fatal("The announcement should name the caller:", ring)
	}
}

func TestPresenceBroadcast(t *testing.T) {
	once.Do(setup)
	aliceGlobal := dialUser(t, "alice-token")
	bobGlobal := dialUser(t, "bob-token")

	online := readUntil(t, aliceGlobal, "bob coming online", func(e map[string]interface{}) bool {
		return e["category"] == "presence" && e["sender"] == float64(2) && e["online"] == true
	})
	if online["online"] != true {
		t.Fatal("Unexpected presence envelope:", online)
	}
	bobGlobal.Close()
	offline := readUntil(t, aliceGlobal, "bob going offline", func(e map[string]interface{}) bool {
		return e["category"] == "presence" && e["sender"] == float64(2) && e["online"] == false
	})
	if offline["last_seen"] == nil {
		t.Fatal("Going offline should carry a last seen time:", offline)
	}
}
