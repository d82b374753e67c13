package events

import (
	"testing"
	"time"
)

func TestLocalFanout(t *testing.T) {
	broker := NewLocal()
	a := broker.Subscribe([]string{"chat:1"})
	b := broker.Subscribe([]string{"chat:1", "u:2"})
	broker.Publish("chat:1", []byte("hello"))
	for _, q := range []MsgQueue{a, b} {
		select {
		case got := <-q.Messages:
			if string(got) != "hello" {
				t.Fatal("Unexpected payload:", string(got))
			}
		case <-time.After(time.Second):
			t.Fatal("A subscriber never got the publish")
		}
	}
	broker.Publish("u:2", []byte("just b"))
	select {
	case got := <-b.Messages:
		if string(got) != "just b" {
			t.Fatal("Unexpected payload:", string(got))
		}
	case <-time.After(time.Second):
		t.Fatal("b never got its channel's publish")
	}
	select {
	case got := <-a.Messages:
		t.Fatal("a should not see u:2 traffic:", string(got))
	default:
	}
}

func TestLocalUnsubscribe(t *testing.T) {
	broker := NewLocal()
	q := broker.Subscribe([]string{"chat:1"})
	q.Commands <- QueueCommand{Command: "UNSUBSCRIBE"}
	deadline := time.Now().Add(time.Second)
	for {
		select {
		case _, ok := <-q.Messages:
			if !ok {
				return
			}
		default:
			if time.Now().After(deadline) {
				t.Fatal("Messages never closed after UNSUBSCRIBE")
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestLocalDoubleUnsubscribe(t *testing.T) {
	broker := NewLocal()
	q := broker.Subscribe([]string{"chat:1"})
	//both halves of a socket may fire their final command; neither should
	//block or panic
	q.Commands <- QueueCommand{Command: "UNSUBSCRIBE"}
	q.Commands <- QueueCommand{Command: "UNSUBSCRIBE"}
}

func TestLocalLateSubscribe(t *testing.T) {
	broker := NewLocal()
	q := broker.Subscribe([]string{"chat:1"})
	q.Commands <- QueueCommand{Command: "SUBSCRIBE", Value: "chat:2"}
	deadline := time.Now().Add(time.Second)
	for {
		broker.Publish("chat:2", []byte("late"))
		select {
		case got := <-q.Messages:
			if string(got) != "late" {
				t.Fatal("Unexpected payload:", string(got))
			}
			return
		default:
			if time.Now().After(deadline) {
				t.Fatal("The late subscription never took effect")
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestChannelKeys(t *testing.T) {
	if ChatChannelKey(7) != "chat:7" {
		t.Fatal("Unexpected chat key:", ChatChannelKey(7))
	}
	if UserChannelKey(3) != "u:3" {
		t.Fatal("Unexpected user key:", UserChannelKey(3))
	}
}
