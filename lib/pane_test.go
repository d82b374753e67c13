package lib

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
)

type paneBackend struct {
	server *httptest.Server

	lock       sync.Mutex
	chats      []cae.Chat
	pinStatus  int
	pinCount   int
	lastPin    map[string]bool
	delCount   int
	lastSearch string
}

func newPaneBackend(t *testing.T, chats []cae.Chat) *paneBackend {
	b := &paneBackend{chats: chats}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chats/", func(w http.ResponseWriter, r *http.Request) {
		b.lock.Lock()
		b.lastSearch = r.FormValue("search")
		list := b.chats
		b.lock.Unlock()
		json.NewEncoder(w).Encode(list)
	})
	mux.HandleFunc("/api/chats/1/pin/", b.pinHandler)
	mux.HandleFunc("/api/chats/2/pin/", b.pinHandler)
	mux.HandleFunc("/api/chats/3/pin/", b.pinHandler)
	mux.HandleFunc("/api/chats/1/messages", func(w http.ResponseWriter, r *http.Request) {
		b.lock.Lock()
		b.delCount++
		b.lock.Unlock()
		w.WriteHeader(204)
	})
	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *paneBackend) pinHandler(w http.ResponseWriter, r *http.Request) {
	b.lock.Lock()
	b.pinCount++
	status := b.pinStatus
	if b.lastPin == nil {
		b.lastPin = make(map[string]bool)
	}
	json.NewDecoder(r.Body).Decode(&b.lastPin)
	b.lock.Unlock()
	if status == 0 {
		status = 200
	}
	w.WriteHeader(status)
}

func (b *paneBackend) pins() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.pinCount
}

func paneChats() []cae.Chat {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bob := cae.Participant{User: cae.User{ID: 2, Name: "bob"}}
	self := cae.Participant{User: cae.User{ID: 1, Name: "alice"}}
	return []cae.Chat{
		{ID: 1, Participants: []cae.Participant{self, bob}, UpdatedTime: base.Add(time.Hour)},
		{ID: 2, Participants: []cae.Participant{self, bob}, UpdatedTime: base},
		{ID: 3, Participants: []cae.Participant{self, bob}, UpdatedTime: base.Add(2 * time.Hour), IsPinned: true},
	}
}

func loadedPane(t *testing.T, b *paneBackend, maxPinned int) *ChatsPane {
	pane := NewChatsPane(NewClient(b.server.URL, "tok"), 1, maxPinned)
	if err := pane.Load(context.Background()); err != nil {
		t.Fatal("Load failed:", err)
	}
	return pane
}

func TestPaneOrder(t *testing.T) {
	b := newPaneBackend(t, paneChats())
	pane := loadedPane(t, b, 5)
	chats := pane.Chats()
	if len(chats) != 3 {
		t.Fatal("Expected 3 chats, got:", len(chats))
	}
	if chats[0].ID != 3 {
		t.Fatal("Pinned chat should lead the pane:", chats)
	}
	if chats[1].ID != 1 || chats[2].ID != 2 {
		t.Fatal("Unpinned chats should order by activity:", chats)
	}
}

func TestPaneBump(t *testing.T) {
	b := newPaneBackend(t, paneChats())
	pane := loadedPane(t, b, 5)
	pane.UpdateChatOrder(2, "hello")
	chats := pane.Chats()
	if chats[0].ID != 3 {
		t.Fatal("A bump must not displace pinned chats:", chats)
	}
	if chats[1].ID != 2 {
		t.Fatal("The bumped chat should lead its section:", chats)
	}
	if chats[1].LastMessage == nil || chats[1].LastMessage.Content != "hello" {
		t.Fatal("The bump should refresh the preview:", chats[1].LastMessage)
	}
	if chats[1].LastMessage.Sender.ID != 2 {
		t.Fatal("Previews attribute the other participant:", chats[1].LastMessage.Sender)
	}
}

func TestPaneRemove(t *testing.T) {
	b := newPaneBackend(t, paneChats())
	pane := loadedPane(t, b, 5)
	pane.RemoveChat(1)
	for _, c := range pane.Chats() {
		if c.ID == 1 {
			t.Fatal("Chat 1 should be gone")
		}
	}
	if len(pane.Chats()) != 2 {
		t.Fatal("Expected 2 chats left")
	}
}

func TestTogglePin(t *testing.T) {
	b := newPaneBackend(t, paneChats())
	pane := loadedPane(t, b, 5)
	if err := pane.TogglePin(context.Background(), 2); err != nil {
		t.Fatal("TogglePin failed:", err)
	}
	chats := pane.Chats()
	if !chats[0].IsPinned || !chats[1].IsPinned {
		t.Fatal("Expected two pinned chats on top:", chats)
	}
	b.lock.Lock()
	pinned := b.lastPin["isPinned"]
	b.lock.Unlock()
	if !pinned {
		t.Fatal("Expected isPinned true on the wire")
	}
}

func TestTogglePinLimit(t *testing.T) {
	b := newPaneBackend(t, paneChats())
	pane := loadedPane(t, b, 1)
	err := pane.TogglePin(context.Background(), 1)
	if err != EPINLIMIT {
		t.Fatal("Expected the pin limit error, got:", err)
	}
	if b.pins() != 0 {
		t.Fatal("A limit rejection must not issue a request")
	}
	for _, c := range pane.Chats() {
		if c.ID == 1 && c.IsPinned {
			t.Fatal("A rejected pin must not stick")
		}
	}
}

func TestTogglePinRevert(t *testing.T) {
	b := newPaneBackend(t, paneChats())
	b.pinStatus = 500
	pane := loadedPane(t, b, 5)
	if err := pane.TogglePin(context.Background(), 2); err == nil {
		t.Fatal("Expected the refused pin to error")
	}
	for _, c := range pane.Chats() {
		if c.ID == 2 && c.IsPinned {
			t.Fatal("A refused pin should revert")
		}
	}
	chats := pane.Chats()
	if chats[0].ID != 3 {
		t.Fatal("The revert should restore the order:", chats)
	}
}

func TestUnpin(t *testing.T) {
	b := newPaneBackend(t, paneChats())
	pane := loadedPane(t, b, 1)
	//at the limit, unpinning must still go through
	if err := pane.TogglePin(context.Background(), 3); err != nil {
		t.Fatal("Unpin failed:", err)
	}
	for _, c := range pane.Chats() {
		if c.IsPinned {
			t.Fatal("Expected nothing pinned:", c)
		}
	}
}

func TestClearMessages(t *testing.T) {
	chats := paneChats()
	chats[0].LastMessage = &cae.LastMessage{Content: "old preview"}
	b := newPaneBackend(t, chats)
	pane := loadedPane(t, b, 5)
	if err := pane.ClearMessages(context.Background(), 1); err != nil {
		t.Fatal("ClearMessages failed:", err)
	}
	for _, c := range pane.Chats() {
		if c.ID == 1 && c.LastMessage != nil {
			t.Fatal("The preview should be wiped")
		}
	}
	if len(pane.Chats()) != 3 {
		t.Fatal("ClearMessages must keep the conversation")
	}
}

func TestSearch(t *testing.T) {
	b := newPaneBackend(t, paneChats())
	pane := loadedPane(t, b, 5)
	if err := pane.Search(context.Background(), "bob"); err != nil {
		t.Fatal("Search failed:", err)
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.lastSearch != "bob" {
		t.Fatal("Search query not forwarded:", b.lastSearch)
	}
}
