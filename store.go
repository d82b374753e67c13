package main

import (
	"strings"
	"sync"
	"time"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
)

//relayStore is the relay's whole world: chats, their messages in arrival
//order, and the tokens that may read them. Deliberately in-memory - the
//relay emulates a backend, it isn't one.
type relayStore struct {
	lock     sync.Mutex
	chats    map[cae.ChatID]*cae.Chat
	messages map[cae.ChatID][]cae.Message
	tokens   map[string]cae.UserID
	nextID   cae.MessageID
}

func newRelayStore() *relayStore {
	return &relayStore{
		chats:    make(map[cae.ChatID]*cae.Chat),
		messages: make(map[cae.ChatID][]cae.Message),
		tokens:   make(map[string]cae.UserID),
		nextID:   1,
	}
}

func (s *relayStore) AddToken(token string, id cae.UserID) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tokens[token] = id
}

func (s *relayStore) ValidateToken(token string) (id cae.UserID, ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	id, ok = s.tokens[token]
	return
}

func (s *relayStore) AddChat(chat cae.Chat) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c := chat
	s.chats[chat.ID] = &c
}

func (s *relayStore) Chat(id cae.ChatID) (chat cae.Chat, ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return
	}
	return *c, true
}

func (s *relayStore) IsParticipant(id cae.ChatID, user cae.UserID) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return false
	}
	for _, p := range c.Participants {
		if p.ID == user {
			return true
		}
	}
	return false
}

func (s *relayStore) Participants(id cae.ChatID) (participants []cae.Participant) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if c, ok := s.chats[id]; ok {
		participants = append(participants, c.Participants...)
	}
	return
}

func (s *relayStore) AddMessage(id cae.ChatID, sender cae.UserID, kind cae.MessageKind, content, fileName string) (m cae.Message, ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return
	}
	m = cae.Message{
		ID:        s.nextID,
		ChatID:    id,
		Sender:    sender,
		Kind:      kind,
		Content:   content,
		FileName:  fileName,
		Timestamp: time.Now().UTC(),
	}
	s.nextID++
	s.messages[id] = append(s.messages[id], m)
	c.UpdatedTime = m.Timestamp
	return m, true
}

func (s *relayStore) MessageByID(chatID cae.ChatID, id cae.MessageID) (m cae.Message, ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, m = range s.messages[chatID] {
		if m.ID == id {
			return m, true
		}
	}
	return cae.Message{}, false
}

//MessagesPage returns one page, most recent first, and whether older
//messages remain beyond it.
func (s *relayStore) MessagesPage(id cae.ChatID, page, size int) (results []cae.Message, hasNext bool, ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok = s.chats[id]; !ok {
		return
	}
	all := s.messages[id]
	total := len(all)
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	for i := total - 1 - start; i >= 0 && len(results) < size; i-- {
		results = append(results, all[i])
	}
	hasNext = start+len(results) < total
	return results, hasNext, true
}

func (s *relayStore) DeleteChat(id cae.ChatID) (ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok = s.chats[id]; !ok {
		return false
	}
	delete(s.chats, id)
	delete(s.messages, id)
	return true
}

func (s *relayStore) DeleteMessages(id cae.ChatID) (ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok = s.chats[id]; !ok {
		return false
	}
	s.messages[id] = nil
	return true
}

func (s *relayStore) SetPinned(id cae.ChatID, pinned bool) (ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return false
	}
	c.IsPinned = pinned
	return true
}

//ChatsFor lists a user's chats, optionally filtered by a case-insensitive
//match on the chat name or a participant's name.
func (s *relayStore) ChatsFor(user cae.UserID, search string) (chats []cae.Chat) {
	s.lock.Lock()
	defer s.lock.Unlock()
	search = strings.ToLower(search)
	for _, c := range s.chats {
		member := false
		matches := search == "" || strings.Contains(strings.ToLower(c.Name), search)
		for _, p := range c.Participants {
			if p.ID == user {
				member = true
			}
			if search != "" && strings.Contains(strings.ToLower(p.Name), search) {
				matches = true
			}
		}
		if member && matches {
			chats = append(chats, *c)
		}
	}
	return
}

//seedDevData gives a fresh relay two users and a chat so a dev build is
//usable immediately: tokens "alice-token" and "bob-token", chat 1.
func (relay *Relay) seedDevData() {
	if !relay.config.DevelopmentMode {
		return
	}
	alice := cae.User{ID: 1, Name: "alice"}
	bob := cae.User{ID: 2, Name: "bob"}
	relay.store.AddToken("alice-token", alice.ID)
	relay.store.AddToken("bob-token", bob.ID)
	relay.store.AddChat(cae.Chat{
		ID:           1,
		Participants: []cae.Participant{{User: alice}, {User: bob}},
		UpdatedTime:  time.Now().UTC(),
	})
}
