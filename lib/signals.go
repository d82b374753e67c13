package lib

import (
	"sync"
	"time"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
)

//Signals latches the most recent incoming-call announcement and relays raw
//call-signalling envelopes to whoever negotiates the media (not us). An
//unanswered call clears itself after the dismiss window.
type Signals struct {
	lock     sync.Mutex
	dismiss  time.Duration
	incoming *cae.IncomingCall
	timer    *time.Timer
	stopped  bool
	calls    chan cae.Incoming
}

//NewSignals constructs a signal service whose incoming-call alert
//auto-dismisses after the given window.
func NewSignals(dismiss time.Duration) *Signals {
	return &Signals{
		dismiss: dismiss,
		calls:   make(chan cae.Incoming, 16),
	}
}

//DeliverCall accepts a demuxed call envelope. incoming_call latches the
//alert; offer/answer/ice_candidate pass straight through on Calls.
func (s *Signals) DeliverCall(in cae.Incoming) {
	if call, ok := in.(*cae.IncomingCall); ok {
		s.latch(call)
		return
	}
	select {
	case s.calls <- in:
	default:
		//negotiator isn't draining; dropping a stale candidate beats blocking
	}
}

func (s *Signals) latch(call *cae.IncomingCall) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.stopped {
		return
	}
	s.incoming = call
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.dismiss, s.Clear)
}

//IncomingCall is the currently ringing call, if any.
func (s *Signals) IncomingCall() *cae.IncomingCall {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.incoming
}

//Clear dismisses the current alert and cancels its timer.
func (s *Signals) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.incoming = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

//Calls delivers the raw signalling envelopes for the WebRTC layer.
func (s *Signals) Calls() <-chan cae.Incoming {
	return s.calls
}

//Stop cancels the dismiss timer for good; call on app teardown.
func (s *Signals) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopped = true
	s.incoming = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
