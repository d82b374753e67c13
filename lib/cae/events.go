package cae

import (
	"encoding/json"
	"fmt"
	"time"
)

//Envelope categories carried over the chat channel.
const (
	CategoryTextMessage  = "text_message"
	CategoryNewMessage   = "new_message"
	CategoryFileMessage  = "file_message"
	CategoryTyping       = "typing"
	CategoryPresence     = "presence"
	CategoryIceCandidate = "ice_candidate"
	CategoryOffer        = "offer"
	CategoryAnswer       = "answer"
	CategoryIncomingCall = "incoming_call"
)

//TextMessageOut is the outgoing envelope for a text send. CorrelationID is
//client-generated and echoed back on the confirming NewMessage.
type TextMessageOut struct {
	Category string      `json:"category"`
	Message  string      `json:"message"`
	Kind     MessageKind `json:"type"`
	ChatID   ChatID      `json:"chat_id"`
	CorrID   string      `json:"correlation_id,omitempty"`
}

//FileMessageOut notifies other participants that an uploaded message exists,
//so they can fetch and display it.
type FileMessageOut struct {
	Category  string    `json:"category"`
	ChatID    ChatID    `json:"chat_id"`
	MessageID MessageID `json:"message_id"`
}

//NewMessage is the inbound envelope for a message arriving in a conversation.
type NewMessage struct {
	Category  string      `json:"category"`
	ID        MessageID   `json:"id"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"type"`
	Sender    UserID      `json:"sender"`
	FileName  string      `json:"file_name,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Chat      ChatID      `json:"chat"`
	CorrID    string      `json:"correlation_id,omitempty"`
}

//Typing flows both ways: outgoing it carries what this user has typed so
//far, incoming it carries another participant's live preview.
type Typing struct {
	Category string `json:"category"`
	ChatID   ChatID `json:"chat_id"`
	Typed    string `json:"typed"`
	Sender   UserID `json:"sender,omitempty"`
}

//Presence is a global broadcast of a user coming online or going away.
type Presence struct {
	Category string    `json:"category"`
	Sender   UserID    `json:"sender"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

//CallSignal wraps the WebRTC session negotiation envelopes. The payload is
//opaque to the session core; media negotiation happens elsewhere.
type CallSignal struct {
	Category string          `json:"category"`
	CallID   string          `json:"call_id"`
	ChatID   ChatID          `json:"chat_id,omitempty"`
	Sender   UserID          `json:"sender,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

//IncomingCall announces a call to a callee. Global, not conversation-scoped.
type IncomingCall struct {
	Category string `json:"category"`
	ChatID   ChatID `json:"chat_id"`
	Caller   User   `json:"caller"`
	CallType string `json:"call_type,omitempty"`
}

//Incoming is the closed set of envelopes a channel can deliver.
type Incoming interface {
	category() string
}

func (m *NewMessage) category() string   { return m.Category }
func (t *Typing) category() string       { return t.Category }
func (p *Presence) category() string     { return p.Category }
func (c *CallSignal) category() string   { return c.Category }
func (c *IncomingCall) category() string { return c.Category }

type envelope struct {
	Category string `json:"category"`
}

//DecodeIncoming parses a raw wire envelope into its concrete type, keyed on
//the category field. Unknown categories come back as an error so the
//transport can log and drop them rather than silently ignoring.
func DecodeIncoming(raw []byte) (Incoming, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	var in Incoming
	switch e.Category {
	case CategoryNewMessage:
		in = &NewMessage{}
	case CategoryTyping:
		in = &Typing{}
	case CategoryPresence:
		in = &Presence{}
	case CategoryIceCandidate, CategoryOffer, CategoryAnswer:
		in = &CallSignal{}
	case CategoryIncomingCall:
		in = &IncomingCall{}
	default:
		return nil, fmt.Errorf("unknown envelope category %q", e.Category)
	}
	if err := json.Unmarshal(raw, in); err != nil {
		return nil, err
	}
	return in, nil
}
