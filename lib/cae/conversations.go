package cae

import "time"

//MessageID uniquely identifies a chat message. Optimistic sends carry a
//locally generated id until the server assigns the real one.
type MessageID uint64

//ChatID identifies a conversation.
type ChatID uint64

//MessageKind discriminates text messages from attachments.
type MessageKind string

const (
	//TextKind is a plain text message.
	TextKind MessageKind = "txt"
	//AttachmentKind is an uploaded file.
	AttachmentKind MessageKind = "attachment"
)

//DeliveryState tracks an optimistic message through its lifecycle.
type DeliveryState string

const (
	//Pending messages have been displayed but not yet confirmed by the server.
	Pending DeliveryState = "pending"
	//Confirmed messages are persisted server-side.
	Confirmed DeliveryState = "confirmed"
	//Failed messages could not be handed to the channel.
	Failed DeliveryState = "failed"
)

//Message is a single entry in a conversation.
//Delivery and CorrelationID are client-side bookkeeping; they never hit the wire
//in this struct (outgoing envelopes carry the correlation id themselves).
type Message struct {
	ID        MessageID     `json:"id"`
	ChatID    ChatID        `json:"chat,omitempty"`
	Sender    UserID        `json:"sender"`
	Kind      MessageKind   `json:"type"`
	Content   string        `json:"content"`
	FileName  string        `json:"file_name,omitempty"`
	FileURL   string        `json:"file,omitempty"`
	MimeType  string        `json:"mime_type,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Delivery  DeliveryState `json:"-"`
	CorrID    string        `json:"-"`
}

//LastMessage is the inbox-view summary of a conversation's most recent message.
type LastMessage struct {
	Content   string      `json:"content"`
	Kind      MessageKind `json:"type"`
	Sender    User        `json:"sender"`
	Timestamp time.Time   `json:"timestamp"`
}

//Chat is a conversation's metadata. Refreshed on load; only presence and
//last-seen fields change live.
type Chat struct {
	ID           ChatID        `json:"id"`
	IsGroup      bool          `json:"is_group,omitempty"`
	Name         string        `json:"name,omitempty"`
	GroupIcon    string        `json:"group_icon,omitempty"`
	Participants []Participant `json:"participants"`
	LastMessage  *LastMessage  `json:"last_message,omitempty"`
	UpdatedTime  time.Time     `json:"updated_time,omitempty"`
	IsPinned     bool          `json:"is_pinned,omitempty"`
}

//Participant finds a participant of this chat by id.
func (c *Chat) Participant(id UserID) (p Participant, ok bool) {
	for _, p = range c.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

//OtherParticipant returns the first participant who isn't the given user -
//the "recipient" of a one-to-one chat.
func (c *Chat) OtherParticipant(self UserID) (p Participant, ok bool) {
	for _, p = range c.Participants {
		if p.ID != self {
			return p, true
		}
	}
	return Participant{}, false
}

//MessagePage is one page of conversation history, most recent first.
//Next is the absolute URL of the next (older) page, or nil when exhausted.
type MessagePage struct {
	Results []Message `json:"results"`
	Next    *string   `json:"next"`
}
