package bot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojf/weatherbot/internal/logutil"
)

type apiCall struct {
	Method string
	Path   string
	Body   map[string]any
}

func fakeTelegram(t *testing.T, status int, reply string) (*httptest.Server, *[]apiCall) {
	t.Helper()
	var calls []apiCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := apiCall{Method: r.Method, Path: r.URL.Path}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &c.Body)
		}
		calls = append(calls, c)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSendMessage_Success(t *testing.T) {
	srv, calls := fakeTelegram(t, http.StatusOK, `{"ok":true,"result":{"message_id":1}}`)
	c := NewClient("123:abc", logutil.Discard()).WithBaseURL(srv.URL)

	ok := c.SendMessage(context.Background(), 42, "hi")

	require.True(t, ok)
	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/bot123:abc/sendMessage", got.Path)
	assert.Equal(t, float64(42), got.Body["chat_id"])
	assert.Equal(t, "hi", got.Body["text"])
}

func TestSendMessage_NoTokenMakesNoCall(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()
	c := NewClient("", logutil.Discard()).WithBaseURL(srv.URL)

	assert.False(t, c.SendMessage(context.Background(), 42, "hi"))
	assert.Zero(t, atomic.LoadInt32(&hits))
	assert.False(t, c.HasToken())
}

func TestSendMessage_HTTPError(t *testing.T) {
	srv, calls := fakeTelegram(t, http.StatusBadRequest, `{"ok":false,"description":"chat not found"}`)
	c := NewClient("tok", logutil.Discard()).WithBaseURL(srv.URL)

	assert.False(t, c.SendMessage(context.Background(), 1, "hi"))
	assert.Len(t, *calls, 1, "single attempt, no retries")
}

func TestSendMessage_NetworkError(t *testing.T) {
	srv, _ := fakeTelegram(t, http.StatusOK, `{"ok":true}`)
	srv.Close()
	c := NewClient("tok", logutil.Discard()).WithBaseURL(srv.URL)

	assert.False(t, c.SendMessage(context.Background(), 1, "hi"))
}

func TestSetWebhook_Payload(t *testing.T) {
	srv, calls := fakeTelegram(t, http.StatusOK, `{"ok":true,"result":true,"description":"Webhook was set"}`)
	c := NewClient("tok", logutil.Discard()).WithBaseURL(srv.URL)

	resp := c.SetWebhook(context.Background(), "https://example.com/telegram/webhook", "s3cret")

	assert.True(t, resp.OK())
	assert.Equal(t, "Webhook was set", resp["description"])
	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, "/bottok/setWebhook", got.Path)
	assert.Equal(t, map[string]any{
		"url":                  "https://example.com/telegram/webhook",
		"secret_token":         "s3cret",
		"drop_pending_updates": true,
	}, got.Body)
}

func TestSetWebhook_HTTPErrorIsStructured(t *testing.T) {
	srv, _ := fakeTelegram(t, http.StatusUnauthorized, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	c := NewClient("tok", logutil.Discard()).WithBaseURL(srv.URL)

	resp := c.SetWebhook(context.Background(), "https://example.com", "s")

	assert.False(t, resp.OK())
	assert.Equal(t, "HTTP error: 401", resp["error"])
	assert.Contains(t, resp["details"], "Unauthorized")
}

func TestWebhookInfoAndDelete(t *testing.T) {
	srv, calls := fakeTelegram(t, http.StatusOK, `{"ok":true,"result":{"url":"https://example.com","pending_update_count":0}}`)
	c := NewClient("tok", logutil.Discard()).WithBaseURL(srv.URL)

	info := c.GetWebhookInfo(context.Background())
	del := c.DeleteWebhook(context.Background())

	assert.True(t, info.OK())
	assert.True(t, del.OK())
	require.Len(t, *calls, 2)
	assert.Equal(t, http.MethodGet, (*calls)[0].Method)
	assert.Equal(t, "/bottok/getWebhookInfo", (*calls)[0].Path)
	assert.Equal(t, "/bottok/deleteWebhook", (*calls)[1].Path)
}

func TestTransportErrorHidesToken(t *testing.T) {
	srv, _ := fakeTelegram(t, http.StatusOK, `{"ok":true}`)
	srv.Close()
	c := NewClient("123:very-secret", logutil.Discard()).WithBaseURL(srv.URL)

	resp := c.GetWebhookInfo(context.Background())

	assert.False(t, resp.OK())
	assert.NotContains(t, resp["error"], "very-secret")
}

func TestUpdateDecoding_Tolerant(t *testing.T) {
	var u Update
	require.NoError(t, json.Unmarshal([]byte(`{"update_id":9,"message":{"chat":{"id":42,"type":"private"},"text":"hello","sticker":{}}}`), &u))
	id, ok := u.Message.ChatID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "unknown", u.Message.Username())

	var bare Update
	require.NoError(t, json.Unmarshal([]byte(`{"message":{}}`), &bare))
	_, ok = bare.Message.ChatID()
	assert.False(t, ok)
}

func TestParseUpdate(t *testing.T) {
	u, err := ParseUpdate([]byte(`{"update_id":12,"message":{"message_id":3,"chat":{"id":-100123},"from":{"id":5,"username":"alice"},"text":"hello"}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(12), u.UpdateID)
	id, ok := u.Message.ChatID()
	require.True(t, ok)
	assert.Equal(t, int64(-100123), id)
	assert.Equal(t, "alice", u.Message.Username())
	assert.Equal(t, "hello", u.Message.Text)

	u, err = ParseUpdate([]byte(`{"update_id":13}`))
	require.NoError(t, err)
	assert.Nil(t, u.Message)

	u, err = ParseUpdate([]byte(`{"message":{"chat":{"id":"x"},"text":["no"],"from":"bob"}}`))
	require.NoError(t, err)
	_, ok = u.Message.ChatID()
	assert.False(t, ok)
	assert.Empty(t, u.Message.Text)
	assert.Equal(t, "unknown", u.Message.Username())

	for _, bad := range []string{``, `nope`, `[]`, `null`, `"str"`, `{"update_id":1} x`, `{} {}`} {
		_, err := ParseUpdate([]byte(bad))
		assert.Error(t, err, bad)
	}
}
