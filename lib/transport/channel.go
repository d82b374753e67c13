//Package transport owns the duplex websocket channel a chat session speaks
//over. One channel per open conversation; a dropped channel is terminal for
//that session view and the caller may Dial again.
package transport

import (
	"fmt"
	"log"
	"sync"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
	"github.com/gorilla/websocket"
)

//ErrClosed is returned by Send once the channel has closed or dropped.
var ErrClosed = cae.APIerror{Reason: "channel is closed"}

//Channel is a live connection scoped to one conversation. Incoming envelopes
//are decoded and delivered on Events; the Events channel closing means the
//connection is gone for good.
type Channel struct {
	chatID cae.ChatID
	ws     *websocket.Conn
	events chan cae.Incoming

	writeLock sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

//Dial opens the websocket for one conversation. The token rides in the path,
//the same way the production backend expects it.
func Dial(wsHost string, chatID cae.ChatID, token string) (*Channel, error) {
	url := fmt.Sprintf("%s/ws/chat/%d/%s/", wsHost, chatID, token)
	return dial(url, chatID)
}

//DialUser opens the global (not conversation-scoped) channel which carries
//presence broadcasts and incoming-call announcements.
func DialUser(wsHost string, token string) (*Channel, error) {
	url := fmt.Sprintf("%s/ws/user/%s/", wsHost, token)
	return dial(url, 0)
}

func dial(url string, chatID cae.ChatID) (*Channel, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	c := &Channel{
		chatID: chatID,
		ws:     ws,
		events: make(chan cae.Incoming, 64),
		done:   make(chan struct{}),
	}
	go c.reader()
	return c, nil
}

//ChatID is the conversation this channel is scoped to; zero for the global
//user channel.
func (c *Channel) ChatID() cae.ChatID {
	return c.chatID
}

//Events delivers decoded inbound envelopes. It is closed when the connection
//drops or Close is called; callers must treat that as terminal.
func (c *Channel) Events() <-chan cae.Incoming {
	return c.events
}

//Send marshals one outgoing envelope onto the wire.
func (c *Channel) Send(envelope interface{}) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	err := c.ws.WriteJSON(envelope)
	if err != nil {
		c.Close()
	}
	return err
}

//Open reports whether the channel is still usable for sends.
func (c *Channel) Open() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

//Close tears the connection down. Safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
	return nil
}

func (c *Channel) reader() {
	defer close(c.events)
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Println("transport: connection dropped:", err)
				c.Close()
			}
			return
		}
		in, err := cae.DecodeIncoming(raw)
		if err != nil {
			log.Println("transport: dropping envelope:", err)
			continue
		}
		select {
		case c.events <- in:
		case <-c.done:
			return
		}
	}
}
