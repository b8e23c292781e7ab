package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Client talks to the Telegram Bot API. Calls are single-attempt.
type Client struct {
	token   string
	httpc   *http.Client
	baseURL string
	log     *slog.Logger
}

func NewClient(token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		token:   strings.TrimSpace(token),
		httpc:   &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
		log:     logger,
	}
}

// WithBaseURL overrides the Bot API base URL (for testing).
func (c *Client) WithBaseURL(baseURL string) *Client {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

func (c *Client) HasToken() bool { return c.token != "" }

func (c *Client) endpoint(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d", e.code)
}

func (c *Client) call(ctx context.Context, httpMethod, method string, payload any) (APIResponse, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", method, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, c.endpoint(method), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, c.scrub(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{code: resp.StatusCode, body: string(raw)}
	}

	var out APIResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	return out, nil
}

// scrub keeps the bot token out of transport errors, which quote the URL.
func (c *Client) scrub(err error) error {
	if c.token == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), c.token, "<token>"))
}

// SendMessage posts text to chatID and reports whether Telegram accepted it.
// Failures are logged, never returned.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) bool {
	if c.token == "" {
		c.log.Error("telegram_send_skipped", "reason", "TELEGRAM_BOT_TOKEN not configured", "chat_id", chatID)
		return false
	}
	_, err := c.call(ctx, http.MethodPost, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		attrs := []any{"chat_id", chatID, "error", err.Error()}
		var se *httpStatusError
		if errors.As(err, &se) {
			attrs = append(attrs, "details", se.body)
		}
		c.log.Error("telegram_send_failed", attrs...)
		return false
	}
	c.log.Info("telegram_send_ok", "chat_id", chatID, "text_len", len(text))
	return true
}

// SetWebhook binds url and the secret token and drops pending updates.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) APIResponse {
	return c.admin(ctx, http.MethodPost, "setWebhook", map[string]any{
		"url":                  url,
		"secret_token":         secret,
		"drop_pending_updates": true,
	})
}

func (c *Client) GetWebhookInfo(ctx context.Context) APIResponse {
	return c.admin(ctx, http.MethodGet, "getWebhookInfo", nil)
}

func (c *Client) DeleteWebhook(ctx context.Context) APIResponse {
	return c.admin(ctx, http.MethodPost, "deleteWebhook", nil)
}

func (c *Client) admin(ctx context.Context, httpMethod, method string, payload any) APIResponse {
	if c.token == "" {
		return errorResponse("TELEGRAM_BOT_TOKEN not found in environment")
	}
	out, err := c.call(ctx, httpMethod, method, payload)
	if err != nil {
		var se *httpStatusError
		if errors.As(err, &se) {
			r := errorResponse(se.Error())
			r["details"] = se.body
			return r
		}
		return errorResponse(err.Error())
	}
	return out
}
