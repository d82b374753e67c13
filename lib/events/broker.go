//Package events is the relay's fanout layer: clients subscribe to channel
//keys and every envelope published to a key reaches every subscriber.
package events

import (
	"fmt"
	"sync"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
)

//QueueCommand alters a live subscription.
type QueueCommand struct {
	Command string
	Value   string
}

//MsgQueue is a subscriber's pair of channels: envelopes arrive on Messages,
//and the subscriber steers its subscription (or ends it) via Commands.
type MsgQueue struct {
	Commands chan QueueCommand
	Messages chan []byte
}

//Broker fans published envelopes out to subscribers.
type Broker interface {
	Publish(channel string, data []byte)
	Subscribe(channels []string) MsgQueue
}

//ChatChannelKey is the pubsub key for one conversation.
func ChatChannelKey(id cae.ChatID) string {
	return fmt.Sprintf("chat:%d", id)
}

//UserChannelKey is the pubsub key for one user's global events.
func UserChannelKey(id cae.UserID) string {
	return fmt.Sprintf("u:%d", id)
}

//Local is an in-process Broker for single-node relays and tests.
type Local struct {
	lock sync.Mutex
	subs map[string]map[chan []byte]bool
}

//NewLocal constructs an empty in-process broker.
func NewLocal() *Local {
	return &Local{subs: make(map[string]map[chan []byte]bool)}
}

//Publish delivers data to everyone currently subscribed to channel.
func (l *Local) Publish(channel string, data []byte) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for c := range l.subs[channel] {
		select {
		case c <- data:
		default:
			//subscriber isn't draining; drop rather than block the relay
		}
	}
}

//Subscribe registers for the given channels and returns the queue pair.
//Sending UNSUBSCRIBE with an empty value ends the subscription and closes
//Messages.
func (l *Local) Subscribe(channels []string) MsgQueue {
	//Commands is buffered so both halves of a socket can send their final
	//UNSUBSCRIBE without coordinating
	q := MsgQueue{
		Commands: make(chan QueueCommand, 2),
		Messages: make(chan []byte, 64),
	}
	l.lock.Lock()
	for _, ch := range channels {
		if l.subs[ch] == nil {
			l.subs[ch] = make(map[chan []byte]bool)
		}
		l.subs[ch][q.Messages] = true
	}
	l.lock.Unlock()
	go l.controller(q)
	return q
}

func (l *Local) controller(q MsgQueue) {
	for command := range q.Commands {
		switch command.Command {
		case "SUBSCRIBE":
			l.lock.Lock()
			if l.subs[command.Value] == nil {
				l.subs[command.Value] = make(map[chan []byte]bool)
			}
			l.subs[command.Value][q.Messages] = true
			l.lock.Unlock()
		case "UNSUBSCRIBE":
			if command.Value == "" {
				l.drop(q.Messages)
				return
			}
			l.lock.Lock()
			delete(l.subs[command.Value], q.Messages)
			l.lock.Unlock()
		}
	}
	l.drop(q.Messages)
}

func (l *Local) drop(messages chan []byte) {
	l.lock.Lock()
	for _, subs := range l.subs {
		delete(subs, messages)
	}
	l.lock.Unlock()
	close(messages)
}
