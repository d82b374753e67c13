package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
	"github.com/gorilla/mux"
)

func init() {
	base.HandleFunc("/chats/", listChats).Methods("GET")
	base.HandleFunc("/chats/messages/{id:[0-9]+}/", getMessages).Methods("GET")
	base.HandleFunc("/chats/messages/{id:[0-9]+}/", postMessage).Methods("POST")
	base.HandleFunc("/chats/{id:[0-9]+}/", getChat).Methods("GET")
	base.HandleFunc("/chats/{id:[0-9]+}/", deleteChat).Methods("DELETE")
	base.HandleFunc("/chats/{id:[0-9]+}/messages", deleteChatMessages).Methods("DELETE")
	base.HandleFunc("/chats/{id:[0-9]+}/pin/", patchPin).Methods("PATCH")
}

func chatID(r *http.Request) cae.ChatID {
	vars := mux.Vars(r)
	_id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		_id = 0
	}
	return cae.ChatID(_id)
}

func listChats(w http.ResponseWriter, r *http.Request) {
	defer timeStat(time.Now(), "relay.chats.get")
	userID, err := authenticate(r)
	if err != nil {
		jsonResponse(w, &EBADTOKEN, 400)
		return
	}
	chats := relay.store.ChatsFor(userID, r.FormValue("search"))
	if len(chats) == 0 {
		//json.Marshal(nil slice) renders "null" rather than "[]"
		jsonResponse(w, []string{}, 200)
		return
	}
	jsonResponse(w, chats, 200)
}

func getMessages(w http.ResponseWriter, r *http.Request) {
	defer timeStat(time.Now(), "relay.messages.get")
	userID, err := authenticate(r)
	if err != nil {
		jsonResponse(w, &EBADTOKEN, 400)
		return
	}
	id := chatID(r)
	if !relay.store.IsParticipant(id, userID) {
		jsonResponse(w, &ENOTFOUND, 404)
		return
	}
	page, err := strconv.Atoi(r.FormValue("page"))
	if err != nil || page < 1 {
		page = 1
	}
	size := relay.config.MessagePageSize
	results, hasNext, ok := relay.store.MessagesPage(id, page, size)
	if !ok {
		jsonResponse(w, &ENOTFOUND, 404)
		return
	}
	resp := cae.MessagePage{Results: results}
	if resp.Results == nil {
		resp.Results = []cae.Message{}
	}
	if hasNext {
		next := fmt.Sprintf("%s/api/chats/messages/%d/?page=%d", relay.config.APIBase, id, page+1)
		resp.Next = &next
	}
	jsonResponse(w, resp, 200)
}

func postMessage(w http.ResponseWriter, r *http.Request) {
	defer timeStat(time.Now(), "relay.messages.post")
	userID, err := authenticate(r)
	if err != nil {
		jsonResponse(w, &EBADTOKEN, 400)
		return
	}
	id := chatID(r)
	if !relay.store.IsParticipant(id, userID) {
		jsonResponse(w, &ENOTFOUND, 404)
		return
	}
	kind := cae.MessageKind(r.FormValue("type"))
	if kind != cae.TextKind && kind != cae.AttachmentKind {
		jsonResponse(w, cae.APIerror{Reason: "Missing parameter: type"}, 400)
		return
	}
	content := r.FormValue("content")
	fileName := ""
	if kind == cae.AttachmentKind {
		file, header, err := r.FormFile("file")
		if err != nil {
			jsonErr(w, err, 400)
			return
		}
		file.Close()
		fileName = header.Filename
	}
	created, ok := relay.store.AddMessage(id, userID, kind, content, fileName)
	if !ok {
		jsonResponse(w, &ENOTFOUND, 404)
		return
	}
	jsonResponse(w, created, 201)
}

func getChat(w http.ResponseWriter, r *http.Request) {
	defer timeStat(time.Now(), "relay.chat.get")
	userID, err := authenticate(r)
	if err != nil {
		jsonResponse(w, &EBADTOKEN, 400)
		return
	}
	id := chatID(r)
	chat, ok := relay.store.Chat(id)
	if !ok || !relay.store.IsParticipant(id, userID) {
		jsonResponse(w, &ENOTFOUND, 404)
		return
	}
	jsonResponse(w, chat, 200)
}

func deleteChat(w http.ResponseWriter, r *http.Request) {
	defer timeStat(time.Now(), "relay.chat.delete")
	userID, err := authenticate(r)
	if err != nil {
		jsonResponse(w, &EBADTOKEN, 400)
		return
	}
	id := chatID(r)
	if !relay.store.IsParticipant(id, userID) || !relay.store.DeleteChat(id) {
		jsonResponse(w, &ENOTFOUND, 404)
		return
	}
	w.WriteHeader(204)
}

func deleteChatMessages(w http.ResponseWriter, r *http.Request) {
	defer timeStat(time.Now(), "relay.chat.messages.delete")
	userID, err := authenticate(r)
	if err != nil {
		jsonResponse(w, &EBADTOKEN, 400)
		return
	}
	id := chatID(r)
	if !relay.store.IsParticipant(id, userID) || !relay.store.DeleteMessages(id) {
		jsonResponse(w, &ENOTFOUND, 404)
		return
	}
	w.WriteHeader(204)
}

func patchPin(w http.ResponseWriter, r *http.Request) {
	defer timeStat(time.Now(), "relay.chat.pin")
	userID, err := authenticate(r)
	if err != nil {
		jsonResponse(w, &EBADTOKEN, 400)
		return
	}
	id := chatID(r)
	if !relay.store.IsParticipant(id, userID) {
		jsonResponse(w, &ENOTFOUND, 404)
		return
	}
	var body struct {
		IsPinned bool `json:"isPinned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonErr(w, err, 400)
		return
	}
	if !relay.store.SetPinned(id, body.IsPinned) {
		jsonResponse(w, &ENOTFOUND, 404)
		return
	}
	jsonResponse(w, body, 200)
}
