package lib

import (
	"sync"
	"time"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
)

//TypingRelay holds the transient typed-text previews of remote participants.
//At most one preview per sender; a preview expires after a window of silence
//or the moment a confirmed message from that sender arrives.
type TypingRelay struct {
	lock    sync.Mutex
	window  time.Duration
	typed   map[cae.UserID]string
	timers  map[cae.UserID]*time.Timer
	gens    map[cae.UserID]uint64
	latest  cae.UserID
	stopped bool
}

//NewTypingRelay constructs a relay whose previews expire after window of
//silence.
func NewTypingRelay(window time.Duration) *TypingRelay {
	return &TypingRelay{
		window: window,
		typed:  make(map[cae.UserID]string),
		timers: make(map[cae.UserID]*time.Timer),
		gens:   make(map[cae.UserID]uint64),
	}
}

//Receive stores one incoming typing event and (re)starts its expiry timer.
//An empty typed string clears the sender's preview immediately.
func (t *TypingRelay) Receive(sender cae.UserID, typed string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.stopped {
		return
	}
	if typed == "" {
		t.clearLocked(sender)
		return
	}
	t.typed[sender] = typed
	t.latest = sender
	if timer, ok := t.timers[sender]; ok {
		timer.Stop()
	}
	//Stop can lose to a timer that has already fired and is waiting on the
	//lock; the generation check stops that stale expiry wiping this preview
	t.gens[sender]++
	gen := t.gens[sender]
	t.timers[sender] = time.AfterFunc(t.window, func() {
		t.expire(sender, gen)
	})
}

func (t *TypingRelay) expire(sender cae.UserID, gen uint64) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.gens[sender] != gen {
		return
	}
	t.clearLocked(sender)
}

//Clear drops a sender's preview; used on expiry and when their message lands.
func (t *TypingRelay) Clear(sender cae.UserID) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.clearLocked(sender)
}

func (t *TypingRelay) clearLocked(sender cae.UserID) {
	delete(t.typed, sender)
	if timer, ok := t.timers[sender]; ok {
		timer.Stop()
		delete(t.timers, sender)
	}
}

//Current returns the live preview for one sender, if any.
func (t *TypingRelay) Current(sender cae.UserID) (typed string, ok bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	typed, ok = t.typed[sender]
	return
}

//Preview returns the most recently active preview - what a one-to-one chat
//header shows.
func (t *TypingRelay) Preview() (sender cae.UserID, typed string, ok bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	typed, ok = t.typed[t.latest]
	return t.latest, typed, ok
}

//Stop cancels every timer; previews no longer accumulate. Called on session
//teardown so nothing fires against a disposed session.
func (t *TypingRelay) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.stopped = true
	for sender, timer := range t.timers {
		timer.Stop()
		delete(t.timers, sender)
	}
	t.typed = make(map[cae.UserID]string)
}
