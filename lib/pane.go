package lib

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
)

//EPINLIMIT = you tried to pin more chats than the pane allows.
var EPINLIMIT = cae.APIerror{Reason: "You can only pin up to 5 chats. Please unpin a chat before pinning a new one."}

//ChatsPane is the ordered chat list beside the conversation view: pinned
//chats first, then most recently active. Sessions report sends and arrivals
//into it through the ChatList interface.
type ChatsPane struct {
	lock      sync.Mutex
	client    *Client
	self      cae.UserID
	maxPinned int
	chats     []cae.Chat
}

//NewChatsPane constructs an empty pane; call Load to populate it.
func NewChatsPane(client *Client, self cae.UserID, maxPinned int) *ChatsPane {
	if maxPinned <= 0 {
		maxPinned = 5
	}
	return &ChatsPane{client: client, self: self, maxPinned: maxPinned}
}

//Load fetches the user's chat list.
func (p *ChatsPane) Load(ctx context.Context) error {
	chats, err := p.client.Chats(ctx, "")
	if err != nil {
		return err
	}
	p.lock.Lock()
	p.chats = sortChats(chats)
	p.lock.Unlock()
	return nil
}

//Search replaces the pane contents with chats matching the query.
func (p *ChatsPane) Search(ctx context.Context, query string) error {
	chats, err := p.client.Chats(ctx, query)
	if err != nil {
		log.Println("pane: search failed:", err)
		return err
	}
	p.lock.Lock()
	p.chats = sortChats(chats)
	p.lock.Unlock()
	return nil
}

//Chats is the current pane order, safe to render.
func (p *ChatsPane) Chats() []cae.Chat {
	p.lock.Lock()
	defer p.lock.Unlock()
	out := make([]cae.Chat, len(p.chats))
	copy(out, p.chats)
	return out
}

//UpdateChatOrder bumps a chat to the top of its section with a fresh
//last-message preview.
func (p *ChatsPane) UpdateChatOrder(id cae.ChatID, lastMessage string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	for i := range p.chats {
		if p.chats[i].ID != id {
			continue
		}
		sender := cae.User{ID: p.self}
		if other, ok := p.chats[i].OtherParticipant(p.self); ok {
			sender = other.User
		}
		p.chats[i].LastMessage = &cae.LastMessage{
			Content:   lastMessage,
			Kind:      cae.TextKind,
			Sender:    sender,
			Timestamp: time.Now().UTC(),
		}
		p.chats[i].UpdatedTime = time.Now().UTC()
		p.chats = sortChats(p.chats)
		return
	}
}

//RemoveChat drops a chat from the pane (after ClearChat deletes it).
func (p *ChatsPane) RemoveChat(id cae.ChatID) {
	p.lock.Lock()
	defer p.lock.Unlock()
	for i := range p.chats {
		if p.chats[i].ID == id {
			p.chats = append(p.chats[:i], p.chats[i+1:]...)
			return
		}
	}
}

//TogglePin flips a chat's pinned state optimistically and reverts if the
//API refuses. At most maxPinned chats may be pinned at once.
func (p *ChatsPane) TogglePin(ctx context.Context, id cae.ChatID) error {
	p.lock.Lock()
	idx := -1
	pinnedCount := 0
	for i := range p.chats {
		if p.chats[i].IsPinned {
			pinnedCount++
		}
		if p.chats[i].ID == id {
			idx = i
		}
	}
	if idx == -1 {
		p.lock.Unlock()
		return nil
	}
	if !p.chats[idx].IsPinned && pinnedCount >= p.maxPinned {
		p.lock.Unlock()
		return EPINLIMIT
	}
	target := !p.chats[idx].IsPinned
	p.chats[idx].IsPinned = target
	p.chats = sortChats(p.chats)
	p.lock.Unlock()

	err := p.client.SetPinned(ctx, id, target)
	if err != nil {
		log.Printf("pane: pinning chat %d failed, reverting: %v\n", id, err)
		p.lock.Lock()
		for i := range p.chats {
			if p.chats[i].ID == id {
				p.chats[i].IsPinned = !target
				break
			}
		}
		p.chats = sortChats(p.chats)
		p.lock.Unlock()
		return err
	}
	return nil
}

//ClearMessages wipes a chat's history but keeps the conversation in the
//pane.
func (p *ChatsPane) ClearMessages(ctx context.Context, id cae.ChatID) error {
	if err := p.client.DeleteMessages(ctx, id); err != nil {
		log.Printf("pane: clearing chat %d failed: %v\n", id, err)
		return err
	}
	p.lock.Lock()
	for i := range p.chats {
		if p.chats[i].ID == id {
			p.chats[i].LastMessage = nil
			break
		}
	}
	p.lock.Unlock()
	return nil
}

//sortChats orders pinned chats first, most recent activity first within each
//section.
func sortChats(chats []cae.Chat) []cae.Chat {
	sort.SliceStable(chats, func(i, j int) bool {
		if chats[i].IsPinned != chats[j].IsPinned {
			return chats[i].IsPinned
		}
		return chats[i].UpdatedTime.After(chats[j].UpdatedTime)
	})
	return chats
}
