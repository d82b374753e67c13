package lib

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
	"github.com/CaeliumHQ/caelium-next/lib/conf"
	"github.com/CaeliumHQ/caelium-next/lib/transport"
	"github.com/google/uuid"
)

//SessionState is where a session is in its lifecycle.
type SessionState string

const (
	//StateLoading = the initial message page and meta are still in flight.
	StateLoading SessionState = "loading"
	//StateReady = the session accepts sends and pagination.
	StateReady SessionState = "ready"
	//StateError = a load or delete failed; terminal, the user retries manually.
	StateError SessionState = "error"
	//StateClosed = torn down; nothing mutates the session again.
	StateClosed SessionState = "closed"
)

//ChatList is the external chat-pane collaborator a session reports into. The
//session only tells it what happened; ordering and rendering are its problem.
type ChatList interface {
	UpdateChatOrder(id cae.ChatID, lastMessage string)
	RemoveChat(id cae.ChatID)
}

//SignalSink receives the call-signalling envelopes a session demuxes but
//does not itself interpret.
type SignalSink interface {
	DeliverCall(in cae.Incoming)
}

//SessionConfig carries everything a Session needs. Client, Presences and
//Statter may be omitted; Pane and Signals are optional collaborators.
type SessionConfig struct {
	ChatID    cae.ChatID
	Self      cae.UserID
	Token     string
	Config    *conf.Config
	Client    *Client
	Presences *Presences
	Pane      ChatList
	Signals   SignalSink
	Statter   PrefixStatter
}

//Session orchestrates one open conversation: initial load, the live channel,
//optimistic sends, uploads, pagination and teardown. Changing conversation
//means closing this session and starting another; the old one's channel is
//closed first and its late responses go nowhere.
type Session struct {
	chatID    cae.ChatID
	self      cae.UserID
	token     string
	config    *conf.Config
	client    *Client
	presences *Presences
	pane      ChatList
	signals   SignalSink
	statter   PrefixStatter

	store  *MessageStore
	typing *TypingRelay

	lock        sync.Mutex
	state       SessionState
	lastErr     *cae.SessionError
	meta        *cae.Chat
	next        *string
	loadingMore bool
	uploading   bool
	channel     *transport.Channel

	cleared     chan struct{}
	clearedOnce sync.Once
	done        chan struct{}
	closeOnce   sync.Once
}

//NewSession constructs a session for one conversation. Nothing happens until
//Start.
func NewSession(sc SessionConfig) *Session {
	config := sc.Config
	if config == nil {
		config = conf.GetConfig()
	}
	client := sc.Client
	if client == nil {
		client = NewClient(config.APIBase, sc.Token)
	}
	presences := sc.Presences
	if presences == nil {
		presences = NewPresences()
	}
	return &Session{
		chatID:    sc.ChatID,
		self:      sc.Self,
		token:     sc.Token,
		config:    config,
		client:    client,
		presences: presences,
		pane:      sc.Pane,
		signals:   sc.Signals,
		statter:   sc.Statter,
		store:     NewMessageStore(),
		typing:    NewTypingRelay(config.TypingWindow()),
		state:     StateLoading,
		cleared:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

//Start performs the initial parallel load of the first message page and the
//conversation meta, then opens the live channel. Both fetches must succeed
//to reach Ready; either failure is terminal. A channel that won't open is
//not: the session stays Ready with sends rejected.
func (s *Session) Start(ctx context.Context) error {
	defer s.statter.Time(time.Now(), "caelium.session.start")
	type pageResult struct {
		page cae.MessagePage
		err  error
	}
	type metaResult struct {
		meta cae.Chat
		err  error
	}
	pages := make(chan pageResult, 1)
	metas := make(chan metaResult, 1)
	go func() {
		page, err := s.client.Messages(ctx, s.chatID)
		pages <- pageResult{page, err}
	}()
	go func() {
		meta, err := s.client.Meta(ctx, s.chatID)
		metas <- metaResult{meta, err}
	}()
	page := <-pages
	meta := <-metas
	if s.isClosed() {
		//superseded while in flight; results must not land anywhere
		return nil
	}
	if err := firstError(page.err, meta.err); err != nil {
		log.Printf("session %d: initial load failed: %v\n", s.chatID, err)
		sessErr := &cae.EFETCH
		if apiErr, ok := err.(*cae.SessionError); ok && apiErr.Code == cae.NotFound {
			sessErr = &cae.ENOTFOUND
		}
		s.lock.Lock()
		s.state = StateError
		s.lastErr = sessErr
		s.lock.Unlock()
		return sessErr
	}
	s.store.Prepend(ascending(page.page.Results))
	s.lock.Lock()
	s.meta = &meta.meta
	s.next = page.page.Next
	s.lock.Unlock()
	for _, p := range meta.meta.Participants {
		s.presences.RecordLastSeen(p.ID, p.LastSeen)
	}

	channel, err := transport.Dial(s.config.WSHost, s.chatID, s.token)
	s.lock.Lock()
	if s.state == StateClosed {
		//closed while dialling; the fresh connection must not outlive us,
		//and a closed session never becomes Ready
		s.lock.Unlock()
		if err == nil {
			channel.Close()
		}
		return nil
	}
	if err != nil {
		//degraded: history is readable but sends will be rejected
		log.Printf("session %d: channel open failed: %v\n", s.chatID, err)
	} else {
		s.channel = channel
		go s.demux(channel)
	}
	s.state = StateReady
	s.lock.Unlock()
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

//ascending reverses a most-recent-first page into store order and stamps the
//entries confirmed (everything the server returns is persisted).
func ascending(results []cae.Message) []cae.Message {
	out := make([]cae.Message, len(results))
	for i, m := range results {
		m.Delivery = cae.Confirmed
		out[len(results)-1-i] = m
	}
	return out
}

func (s *Session) demux(channel *transport.Channel) {
	for {
		select {
		case <-s.done:
			return
		case in, ok := <-channel.Events():
			if !ok {
				s.lock.Lock()
				if s.channel == channel {
					s.channel = nil
				}
				s.lock.Unlock()
				log.Printf("session %d: channel dropped; sends now rejected\n", s.chatID)
				return
			}
			switch e := in.(type) {
			case *cae.NewMessage:
				s.handleNewMessage(e)
			case *cae.Typing:
				if e.ChatID == s.chatID && e.Sender != s.self {
					s.typing.Receive(e.Sender, e.Typed)
				}
			case *cae.Presence:
				s.presences.Observe(e)
			case *cae.IncomingCall:
				s.deliverCall(e)
			case *cae.CallSignal:
				s.deliverCall(e)
			}
		}
	}
}

func (s *Session) deliverCall(in cae.Incoming) {
	if s.signals != nil {
		s.signals.DeliverCall(in)
	}
}

func (s *Session) handleNewMessage(e *cae.NewMessage) {
	if e.Chat != s.chatID {
		//a stale handler must never leak another conversation's messages in
		return
	}
	m := cae.Message{
		ID:        e.ID,
		ChatID:    e.Chat,
		Sender:    e.Sender,
		Kind:      e.Kind,
		Content:   e.Content,
		FileName:  e.FileName,
		Timestamp: e.Timestamp,
		Delivery:  cae.Confirmed,
	}
	if e.Sender == s.self {
		//an upload is appended by SendFile before its fanout echo arrives;
		//that echo must not land a second entry or eat a pending text
		if s.store.Contains(e.ID) {
			return
		}
		//confirmation of an optimistic send: exactly one entry may flip
		if s.store.ReplacePending(e.CorrID, m) {
			return
		}
		if s.store.ConfirmOldestPending(e.Sender, m) {
			return
		}
		//sent from another device; just a live message from ourselves
		s.store.Append(m)
		return
	}
	s.typing.Clear(e.Sender)
	s.presences.RecordLastSeen(e.Sender, e.Timestamp)
	s.store.Append(m)
	if s.pane != nil {
		preview := e.Content
		if e.Kind == cae.AttachmentKind {
			preview = "Sent an attachment"
		}
		s.pane.UpdateChatOrder(s.chatID, preview)
	}
	s.statter.Count(1, "caelium.messages.received")
}

//SendText performs an optimistic text send: blank input is a no-op, a closed
//channel rejects the send outright (never queued), and otherwise a pending
//message appears immediately and is confirmed when the server echoes it
//back.
func (s *Session) SendText(text string) error {
	defer s.statter.Time(time.Now(), "caelium.messages.send")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	s.lock.Lock()
	channel := s.channel
	s.lock.Unlock()
	if channel == nil || !channel.Open() {
		log.Printf("session %d: send rejected, channel not open\n", s.chatID)
		return &cae.ESENDCLOSED
	}
	corrID := uuid.New().String()
	m := cae.Message{
		ID:        cae.MessageID(time.Now().UnixMilli()),
		ChatID:    s.chatID,
		Sender:    s.self,
		Kind:      cae.TextKind,
		Content:   text,
		Timestamp: time.Now().UTC(),
		Delivery:  cae.Pending,
		CorrID:    corrID,
	}
	s.store.Append(m)
	err := channel.Send(cae.TextMessageOut{
		Category: cae.CategoryTextMessage,
		Message:  text,
		Kind:     cae.TextKind,
		ChatID:   s.chatID,
		CorrID:   corrID,
	})
	if err != nil {
		s.store.MarkFailed(corrID)
		log.Printf("session %d: send failed: %v\n", s.chatID, err)
		return &cae.ESENDCLOSED
	}
	if s.pane != nil {
		s.pane.UpdateChatOrder(s.chatID, text)
	}
	s.statter.Count(1, "caelium.messages.sent")
	return nil
}

//SendFile uploads an attachment via the REST API (not the channel), then
//broadcasts a file_message so other participants fetch it. Attachments are
//never rendered optimistically: only the confirmed message enters the store,
//and a failed upload leaves no residue.
func (s *Session) SendFile(ctx context.Context, fileName string, file io.Reader) (created cae.Message, err error) {
	defer s.statter.Time(time.Now(), "caelium.messages.upload")
	s.lock.Lock()
	s.uploading = true
	s.lock.Unlock()
	defer func() {
		s.lock.Lock()
		s.uploading = false
		s.lock.Unlock()
	}()
	created, err = s.client.CreateMessage(ctx, s.chatID, cae.AttachmentKind, "", fileName, file)
	if err != nil {
		log.Printf("session %d: upload failed: %v\n", s.chatID, err)
		return
	}
	if s.isClosed() {
		return
	}
	created.ChatID = s.chatID
	created.Sender = s.self
	created.Delivery = cae.Confirmed
	s.store.Append(created)
	s.lock.Lock()
	channel := s.channel
	s.lock.Unlock()
	if channel != nil && channel.Open() {
		notifyErr := channel.Send(cae.FileMessageOut{
			Category:  cae.CategoryFileMessage,
			ChatID:    s.chatID,
			MessageID: created.ID,
		})
		if notifyErr != nil {
			log.Printf("session %d: file_message broadcast failed: %v\n", s.chatID, notifyErr)
		}
	}
	if s.pane != nil {
		s.pane.UpdateChatOrder(s.chatID, "Sent an attachment")
	}
	return
}

//LoadMoreHistory fetches the next older page and prepends it. A nil cursor
//or an in-flight fetch makes it a no-op, so hammering it is harmless; the
//in-flight flag is released on every exit path.
func (s *Session) LoadMoreHistory(ctx context.Context) error {
	s.lock.Lock()
	if s.next == nil || s.loadingMore {
		s.lock.Unlock()
		return nil
	}
	s.loadingMore = true
	next := *s.next
	s.lock.Unlock()
	defer func() {
		s.lock.Lock()
		s.loadingMore = false
		s.lock.Unlock()
	}()
	defer s.statter.Time(time.Now(), "caelium.messages.page")
	page, err := s.client.MessagesAt(ctx, next)
	if err != nil {
		//non-terminal: cursor stays put, the user can try again
		log.Printf("session %d: loading older messages failed: %v\n", s.chatID, err)
		return err
	}
	if s.isClosed() {
		return nil
	}
	s.store.Prepend(ascending(page.Results))
	s.lock.Lock()
	s.next = page.Next
	s.lock.Unlock()
	return nil
}

//NotifyTyping broadcasts what this user has typed so far. Debouncing is the
//caller's concern; the relay sends exactly what it is given.
func (s *Session) NotifyTyping(text string) error {
	s.lock.Lock()
	channel := s.channel
	s.lock.Unlock()
	if channel == nil || !channel.Open() {
		return nil
	}
	return channel.Send(cae.Typing{
		Category: cae.CategoryTyping,
		ChatID:   s.chatID,
		Typed:    text,
	})
}

//ClearChat deletes the conversation's history, tells the chat list to drop
//it, and closes the session. The Cleared channel signals the caller to
//navigate away.
func (s *Session) ClearChat(ctx context.Context) error {
	err := s.client.DeleteChat(ctx, s.chatID)
	if err != nil {
		log.Printf("session %d: delete failed: %v\n", s.chatID, err)
		s.lock.Lock()
		s.state = StateError
		s.lastErr = &cae.EDELETE
		s.lock.Unlock()
		return &cae.EDELETE
	}
	if s.pane != nil {
		s.pane.RemoveChat(s.chatID)
	}
	s.clearedOnce.Do(func() {
		close(s.cleared)
	})
	s.Close()
	return nil
}

//Close tears the session down: channel closed, typing timers cancelled,
//state Closed. Always close the old session before starting one for another
//conversation.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.lock.Lock()
		s.state = StateClosed
		channel := s.channel
		s.channel = nil
		s.lock.Unlock()
		close(s.done)
		if channel != nil {
			channel.Close()
		}
		s.typing.Stop()
	})
	return nil
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

//State reports where the session is in its lifecycle.
func (s *Session) State() SessionState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

//Err is the terminal error, if the session is in StateError.
func (s *Session) Err() *cae.SessionError {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastErr
}

//Messages is the current render view: ascending, possibly mixed delivery
//states.
func (s *Session) Messages() []cae.Message {
	return s.store.List()
}

//Meta is the conversation metadata fetched at load.
func (s *Session) Meta() *cae.Chat {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.meta
}

//HasMoreHistory reports whether older pages remain.
func (s *Session) HasMoreHistory() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.next != nil
}

//IsLoadingMore reports whether a history fetch is in flight.
func (s *Session) IsLoadingMore() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.loadingMore
}

//IsUploading reports whether an attachment upload is in flight.
func (s *Session) IsUploading() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.uploading
}

//TypingPreview is the most recent live preview from a remote participant.
func (s *Session) TypingPreview() (sender cae.UserID, typed string, ok bool) {
	return s.typing.Preview()
}

//CurrentTyping is the live preview for one participant.
func (s *Session) CurrentTyping(sender cae.UserID) (typed string, ok bool) {
	return s.typing.Current(sender)
}

//Participant looks a participant up in the loaded meta.
func (s *Session) Participant(id cae.UserID) (p cae.Participant, ok bool) {
	s.lock.Lock()
	meta := s.meta
	s.lock.Unlock()
	if meta == nil {
		return
	}
	return meta.Participant(id)
}

//LastSeenLabel renders a participant's presence the way the chat header
//shows it: "online", or their most recent activity from the tracker, falling
//back to the last_seen the meta was loaded with.
func (s *Session) LastSeenLabel(id cae.UserID) string {
	if s.presences.IsOnline(id) {
		return "online"
	}
	if at, ok := s.presences.LastSeen(id); ok {
		return "last seen " + formatTimeSince(at)
	}
	if p, ok := s.Participant(id); ok && !p.LastSeen.IsZero() {
		return "last seen " + formatTimeSince(p.LastSeen)
	}
	return "offline"
}

//Cleared is closed once ClearChat succeeds; the caller navigates away.
func (s *Session) Cleared() <-chan struct{} {
	return s.cleared
}

//Presences is the shared presence tracker this session feeds.
func (s *Session) Presences() *Presences {
	return s.presences
}
