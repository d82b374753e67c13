package lib

import (
	"sync"
	"time"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
)

//Presences tracks which users are online right now, and when everyone else
//was last seen. Global across conversations; fed from transport presence
//broadcasts, queried by whatever is rendering.
type Presences struct {
	lock     sync.RWMutex
	online   map[cae.UserID]bool
	lastSeen map[cae.UserID]time.Time
}

//NewPresences constructs an empty tracker.
func NewPresences() *Presences {
	return &Presences{
		online:   make(map[cae.UserID]bool),
		lastSeen: make(map[cae.UserID]time.Time),
	}
}

//MarkOnline records that this user currently has a live connection.
func (p *Presences) MarkOnline(id cae.UserID) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.online[id] = true
}

//MarkOffline records that this user's last connection is gone.
func (p *Presences) MarkOffline(id cae.UserID) {
	p.lock.Lock()
	defer p.lock.Unlock()
	delete(p.online, id)
}

//RecordLastSeen notes when a user was last active. The transport gives no
//ordering guarantee, so an older timestamp never overwrites a newer one.
func (p *Presences) RecordLastSeen(id cae.UserID, at time.Time) {
	if at.IsZero() {
		return
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if existing, ok := p.lastSeen[id]; ok && !at.After(existing) {
		return
	}
	p.lastSeen[id] = at
}

//IsOnline reports whether this user is connected right now.
func (p *Presences) IsOnline(id cae.UserID) bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.online[id]
}

//LastSeen returns the most recent activity time known for a user, if any.
func (p *Presences) LastSeen(id cae.UserID) (at time.Time, ok bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	at, ok = p.lastSeen[id]
	return
}

//Observe applies one presence broadcast to the tracker.
func (p *Presences) Observe(event *cae.Presence) {
	if event.Online {
		p.MarkOnline(event.Sender)
	} else {
		p.MarkOffline(event.Sender)
	}
	p.RecordLastSeen(event.Sender, event.LastSeen)
}
