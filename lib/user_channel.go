package lib

import (
	"log"
	"sync"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
	"github.com/CaeliumHQ/caelium-next/lib/conf"
	"github.com/CaeliumHQ/caelium-next/lib/transport"
)

//UserChannelConfig carries what the global channel needs. Config and
//Presences may be omitted; Signals is an optional collaborator.
type UserChannelConfig struct {
	Token     string
	Config    *conf.Config
	Presences *Presences
	Signals   SignalSink
}

//UserChannel is the global half of the realtime connection: presence
//broadcasts and incoming-call announcements arrive here regardless of which
//conversation is open. One per logged-in app, typically sharing its
//Presences with every Session. No automatic reconnect; a dropped channel
//means opening a new one.
type UserChannel struct {
	presences *Presences
	signals   SignalSink
	channel   *transport.Channel
	done      chan struct{}
	closeOnce sync.Once
}

//OpenUserChannel dials the global channel and starts demuxing its events.
func OpenUserChannel(uc UserChannelConfig) (*UserChannel, error) {
	config := uc.Config
	if config == nil {
		config = conf.GetConfig()
	}
	presences := uc.Presences
	if presences == nil {
		presences = NewPresences()
	}
	channel, err := transport.DialUser(config.WSHost, uc.Token)
	if err != nil {
		return nil, err
	}
	u := &UserChannel{
		presences: presences,
		signals:   uc.Signals,
		channel:   channel,
		done:      make(chan struct{}),
	}
	go u.demux()
	return u, nil
}

func (u *UserChannel) demux() {
	for {
		select {
		case <-u.done:
			return
		case in, ok := <-u.channel.Events():
			if !ok {
				log.Println("user channel dropped; presence updates stop")
				return
			}
			switch e := in.(type) {
			case *cae.Presence:
				u.presences.Observe(e)
			case *cae.IncomingCall:
				u.deliverCall(e)
			case *cae.CallSignal:
				u.deliverCall(e)
			}
		}
	}
}

func (u *UserChannel) deliverCall(in cae.Incoming) {
	if u.signals != nil {
		u.signals.DeliverCall(in)
	}
}

//Presences is the tracker this channel feeds; share it with Sessions so
//chat headers see global presence.
func (u *UserChannel) Presences() *Presences {
	return u.presences
}

//Open reports whether the underlying connection is still alive.
func (u *UserChannel) Open() bool {
	return u.channel.Open()
}

//Close tears the global channel down.
func (u *UserChannel) Close() error {
	u.closeOnce.Do(func() {
		close(u.done)
		u.channel.Close()
	})
	return nil
}
