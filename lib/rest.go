package lib

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
)

//Client speaks the Caelium REST API: paginated history, conversation meta,
//multipart message creation and the chat-list operations. It never retries;
//failures surface to the caller.
type Client struct {
	base  string
	token string
	hc    *http.Client
}

//NewClient constructs a client for the API at base, authenticating every
//request with token.
func NewClient(base, token string) *Client {
	return &Client{
		base:  base,
		token: token,
		hc:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(req *http.Request, expect int, v interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		return &cae.ENOTFOUND
	}
	if resp.StatusCode != expect {
		apiErr := cae.APIerror{}
		if err = json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Reason != "" {
			return apiErr
		}
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Path)
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) getJSON(ctx context.Context, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	return c.do(req, 200, v)
}

//Messages fetches the first page of a conversation's history, most recent
//first.
func (c *Client) Messages(ctx context.Context, chatID cae.ChatID) (page cae.MessagePage, err error) {
	err = c.getJSON(ctx, fmt.Sprintf("%s/api/chats/messages/%d/", c.base, chatID), &page)
	return
}

//MessagesAt fetches an older history page by its cursor URL.
func (c *Client) MessagesAt(ctx context.Context, next string) (page cae.MessagePage, err error) {
	err = c.getJSON(ctx, next, &page)
	return
}

//Meta fetches a conversation's metadata.
func (c *Client) Meta(ctx context.Context, chatID cae.ChatID) (meta cae.Chat, err error) {
	err = c.getJSON(ctx, fmt.Sprintf("%s/api/chats/%d/", c.base, chatID), &meta)
	return
}

//CreateMessage uploads an attachment (or non-optimistic text) as multipart
//form data and returns the persisted message.
func (c *Client) CreateMessage(ctx context.Context, chatID cae.ChatID, kind cae.MessageKind, content, fileName string, file io.Reader) (created cae.Message, err error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	form.WriteField("type", string(kind))
	form.WriteField("content", content)
	if file != nil {
		var part io.Writer
		part, err = form.CreateFormFile("file", fileName)
		if err != nil {
			return
		}
		if _, err = io.Copy(part, file); err != nil {
			return
		}
	}
	if err = form.Close(); err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/chats/messages/%d/", c.base, chatID), body)
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	err = c.do(req, 201, &created)
	return
}

//DeleteChat deletes the conversation and its history.
func (c *Client) DeleteChat(ctx context.Context, chatID cae.ChatID) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", fmt.Sprintf("%s/api/chats/%d/", c.base, chatID), nil)
	if err != nil {
		return err
	}
	return c.do(req, 204, nil)
}

//DeleteMessages clears a conversation's message history but keeps the
//conversation itself.
func (c *Client) DeleteMessages(ctx context.Context, chatID cae.ChatID) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", fmt.Sprintf("%s/api/chats/%d/messages", c.base, chatID), nil)
	if err != nil {
		return err
	}
	return c.do(req, 204, nil)
}

//SetPinned pins or unpins a conversation.
func (c *Client) SetPinned(ctx context.Context, chatID cae.ChatID, pinned bool) error {
	payload, _ := json.Marshal(map[string]bool{"isPinned": pinned})
	req, err := http.NewRequestWithContext(ctx, "PATCH", fmt.Sprintf("%s/api/chats/%d/pin/", c.base, chatID), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, 200, nil)
}

//Chats lists the user's conversations, optionally filtered by a search
//query.
func (c *Client) Chats(ctx context.Context, query string) (chats []cae.Chat, err error) {
	u := c.base + "/api/chats/"
	if query != "" {
		u += "?search=" + url.QueryEscape(query)
	}
	err = c.getJSON(ctx, u, &chats)
	return
}
