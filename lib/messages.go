package lib

import (
	"sync"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
)

//MessageStore is the ordered, paginated log of one conversation's messages.
//History pages prepend, live and optimistic messages append, and nothing is
//ever reordered once inserted; the only in-place mutation is a pending entry
//being replaced by its confirmed counterpart.
type MessageStore struct {
	lock     sync.RWMutex
	messages []cae.Message
}

//NewMessageStore constructs an empty store.
func NewMessageStore() *MessageStore {
	return new(MessageStore)
}

//Append adds a live or optimistic message at the end of the log.
func (s *MessageStore) Append(m cae.Message) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.messages = append(s.messages, m)
}

//Prepend inserts an older history page, already in ascending order, before
//everything currently held.
func (s *MessageStore) Prepend(older []cae.Message) {
	s.lock.Lock()
	defer s.lock.Unlock()
	merged := make([]cae.Message, 0, len(older)+len(s.messages))
	merged = append(merged, older...)
	merged = append(merged, s.messages...)
	s.messages = merged
}

//ReplacePending swaps the pending entry with this correlation id for its
//confirmed counterpart, in place. A missing correlation id is a silent no-op:
//confirmation may race with cleanup.
func (s *MessageStore) ReplacePending(corrID string, confirmed cae.Message) (ok bool) {
	if corrID == "" {
		return false
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	for i := range s.messages {
		if s.messages[i].Delivery == cae.Pending && s.messages[i].CorrID == corrID {
			confirmed.Delivery = cae.Confirmed
			confirmed.CorrID = corrID
			s.messages[i] = confirmed
			return true
		}
	}
	return false
}

//ConfirmOldestPending is the fallback match for backends that don't echo
//correlation ids: the oldest pending message from this sender is taken as
//confirmed by the arrival.
func (s *MessageStore) ConfirmOldestPending(sender cae.UserID, confirmed cae.Message) (ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i := range s.messages {
		if s.messages[i].Delivery == cae.Pending && s.messages[i].Sender == sender {
			confirmed.Delivery = cae.Confirmed
			s.messages[i] = confirmed
			return true
		}
	}
	return false
}

//Contains reports whether a confirmed message with this server id is
//already loaded. Pending entries don't count: their ids are local
//placeholders, not server ids.
func (s *MessageStore) Contains(id cae.MessageID) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for i := range s.messages {
		if s.messages[i].ID == id && s.messages[i].Delivery != cae.Pending {
			return true
		}
	}
	return false
}

//MarkFailed flags a pending message whose envelope never made it out.
func (s *MessageStore) MarkFailed(corrID string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i := range s.messages {
		if s.messages[i].CorrID == corrID {
			s.messages[i].Delivery = cae.Failed
			return
		}
	}
}

//List returns a copy of the log in ascending order, safe to render while the
//store keeps moving.
func (s *MessageStore) List() []cae.Message {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make([]cae.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

//Count is the number of messages currently loaded.
func (s *MessageStore) Count() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.messages)
}
