package bot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Update is the subset of a Telegram update the relay reads. Unknown fields
// are ignored and absent objects stay nil.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      *Chat  `json:"chat,omitempty"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// ChatID returns the chat id and whether one was present.
func (m *Message) ChatID() (int64, bool) {
	if m == nil || m.Chat == nil || m.Chat.ID == 0 {
		return 0, false
	}
	return m.Chat.ID, true
}

// Username falls back to "unknown" like the logs expect.
func (m *Message) Username() string {
	if m == nil || m.From == nil || m.From.Username == "" {
		return "unknown"
	}
	return m.From.Username
}

// APIResponse is a Bot API reply kept as raw JSON fields, plus the
// {ok:false,error,details} shape used when the call itself failed.
type APIResponse map[string]any

func (r APIResponse) OK() bool {
	ok, _ := r["ok"].(bool)
	return ok
}

func errorResponse(msg string) APIResponse {
	return APIResponse{"ok": false, "error": msg}
}

// ParseUpdate decodes a webhook body. The body must be a JSON object; inside
// it, fields of an unexpected type read as absent rather than failing.
func ParseUpdate(raw []byte) (*Update, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("invalid update body: %w", err)
	}
	if obj == nil {
		return nil, errors.New("invalid update body: expected a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid update body: unexpected data after JSON object")
	}

	u := &Update{UpdateID: intField(obj, "update_id")}
	msg, ok := obj["message"].(map[string]any)
	if !ok {
		if _, present := obj["message"]; present {
			u.Message = &Message{}
		}
		return u, nil
	}
	u.Message = &Message{
		MessageID: intField(msg, "message_id"),
		Date:      intField(msg, "date"),
	}
	u.Message.Text, _ = msg["text"].(string)
	if chat, ok := msg["chat"].(map[string]any); ok {
		u.Message.Chat = &Chat{ID: intField(chat, "id")}
	}
	if from, ok := msg["from"].(map[string]any); ok {
		u.Message.From = &User{ID: intField(from, "id")}
		u.Message.From.Username, _ = from["username"].(string)
		u.Message.From.FirstName, _ = from["first_name"].(string)
	}
	return u, nil
}

func intField(m map[string]any, key string) int64 {
	n, ok := m[key].(json.Number)
	if !ok {
		return 0
	}
	v, err := n.Int64()
	if err != nil {
		return 0
	}
	return v
}
