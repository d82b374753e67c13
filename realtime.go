package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
	"github.com/CaeliumHQ/caelium-next/lib/events"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

func init() {
	r.HandleFunc("/ws/chat/{id:[0-9]+}/{token}/", chatSocketHandler)
	r.HandleFunc("/ws/user/{token}/", userSocketHandler)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

//clientEnvelope is everything a client may send up a socket, keyed on
//category. Fields beyond the category's own are ignored.
type clientEnvelope struct {
	Category  string          `json:"category"`
	Message   string          `json:"message"`
	Kind      cae.MessageKind `json:"type"`
	ChatID    cae.ChatID      `json:"chat_id"`
	CorrID    string          `json:"correlation_id"`
	MessageID cae.MessageID   `json:"message_id"`
	Typed     string          `json:"typed"`
	CallID    string          `json:"call_id"`
	Payload   json.RawMessage `json:"payload"`
}

func chatSocketHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, ok := relay.store.ValidateToken(vars["token"])
	if !ok {
		http.Error(w, EBADTOKEN.Reason, 403)
		return
	}
	id := chatID(r)
	if !relay.store.IsParticipant(id, userID) {
		http.Error(w, ENOTFOUND.Reason, 404)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("relay: upgrade failed:", err)
		return
	}
	defer ws.Close()
	queue := relay.broker.Subscribe([]string{events.ChatChannelKey(id)})
	go chatSocketReader(ws, id, userID, queue)
	for {
		message, ok := <-queue.Messages
		if !ok {
			return
		}
		if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Println("relay: socket write failed:", err)
			queue.Commands <- events.QueueCommand{Command: "UNSUBSCRIBE"}
			return
		}
	}
}

func chatSocketReader(ws *websocket.Conn, id cae.ChatID, userID cae.UserID, queue events.MsgQueue) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			queue.Commands <- events.QueueCommand{Command: "UNSUBSCRIBE"}
			return
		}
		var c clientEnvelope
		if err := json.Unmarshal(raw, &c); err != nil {
			log.Println("relay: bad client envelope:", err)
			continue
		}
		relay.handleClientEnvelope(id, userID, c, raw)
	}
}

func (relay *Relay) handleClientEnvelope(id cae.ChatID, userID cae.UserID, c clientEnvelope, raw []byte) {
	switch c.Category {
	case cae.CategoryTextMessage:
		created, ok := relay.store.AddMessage(id, userID, cae.TextKind, c.Message, "")
		if !ok {
			return
		}
		relay.publishNewMessage(id, created, c.CorrID)
	case cae.CategoryFileMessage:
		//the upload already persisted the message; fan the reference out
		m, ok := relay.store.MessageByID(id, c.MessageID)
		if !ok {
			return
		}
		relay.publishNewMessage(id, m, "")
	case cae.CategoryTyping:
		relay.publish(events.ChatChannelKey(id), cae.Typing{
			Category: cae.CategoryTyping,
			ChatID:   id,
			Typed:    c.Typed,
			Sender:   userID,
		})
	case cae.CategoryOffer, cae.CategoryAnswer, cae.CategoryIceCandidate:
		relay.publish(events.ChatChannelKey(id), cae.CallSignal{
			Category: c.Category,
			CallID:   c.CallID,
			ChatID:   id,
			Sender:   userID,
			Payload:  c.Payload,
		})
		if c.Category == cae.CategoryOffer {
			relay.announceCall(id, userID)
		}
	default:
		log.Printf("relay: unknown client envelope category %q\n", c.Category)
	}
}

func (relay *Relay) publishNewMessage(id cae.ChatID, m cae.Message, corrID string) {
	relay.publish(events.ChatChannelKey(id), cae.NewMessage{
		Category:  cae.CategoryNewMessage,
		ID:        m.ID,
		Content:   m.Content,
		Kind:      m.Kind,
		Sender:    m.Sender,
		FileName:  m.FileName,
		Timestamp: m.Timestamp,
		Chat:      id,
		CorrID:    corrID,
	})
}

//announceCall rings everyone else in the conversation on their global
//channel.
func (relay *Relay) announceCall(id cae.ChatID, caller cae.UserID) {
	chat, ok := relay.store.Chat(id)
	if !ok {
		return
	}
	from, _ := chat.Participant(caller)
	announcement := cae.IncomingCall{
		Category: cae.CategoryIncomingCall,
		ChatID:   id,
		Caller:   from.User,
	}
	for _, p := range chat.Participants {
		if p.ID != caller {
			relay.publish(events.UserChannelKey(p.ID), announcement)
		}
	}
}

func (relay *Relay) publish(channel string, envelope interface{}) {
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Println("relay: marshalling envelope failed:", err)
		return
	}
	relay.broker.Publish(channel, data)
}

//presenceChannel carries every user's online/offline broadcasts; all user
//sockets subscribe to it.
const presenceChannel = "presence"

func userSocketHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, ok := relay.store.ValidateToken(vars["token"])
	if !ok {
		http.Error(w, EBADTOKEN.Reason, 403)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("relay: upgrade failed:", err)
		return
	}
	defer ws.Close()
	queue := relay.broker.Subscribe([]string{events.UserChannelKey(userID), presenceChannel})
	relay.publish(presenceChannel, cae.Presence{
		Category: cae.CategoryPresence,
		Sender:   userID,
		Online:   true,
	})
	defer relay.publish(presenceChannel, cae.Presence{
		Category: cae.CategoryPresence,
		Sender:   userID,
		Online:   false,
		LastSeen: time.Now().UTC(),
	})
	go userSocketReader(ws, queue)
	for {
		message, ok := <-queue.Messages
		if !ok {
			return
		}
		if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
			queue.Commands <- events.QueueCommand{Command: "UNSUBSCRIBE"}
			return
		}
	}
}

func userSocketReader(ws *websocket.Conn, queue events.MsgQueue) {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			queue.Commands <- events.QueueCommand{Command: "UNSUBSCRIBE"}
			return
		}
	}
}
