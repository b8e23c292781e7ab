package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/lojf/weatherbot/internal/bot"
)

const (
	SecretHeader    = "X-Telegram-Bot-Api-Secret-Token"
	maxWebhookBytes = 1 << 20
)

// UpdateHandler processes one parsed update.
type UpdateHandler interface {
	Handle(ctx context.Context, u *bot.Update) bot.Outcome
}

type resultKind int

const (
	resultOK resultKind = iota
	resultUnauthorized
	resultInvalid
)

// webhookResult is what the webhook boundary maps onto a status code.
type webhookResult struct {
	kind resultKind
	err  error
}

func (r webhookResult) status() int {
	switch r.kind {
	case resultUnauthorized:
		return http.StatusForbidden
	case resultInvalid:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func (r webhookResult) body() map[string]any {
	switch r.kind {
	case resultUnauthorized:
		return map[string]any{"ok": false, "error": "Unauthorized"}
	case resultInvalid:
		return map[string]any{"ok": false, "error": r.err.Error()}
	default:
		return map[string]any{"ok": true}
	}
}

// TelegramWebhook receives updates from Telegram. Once the body parses, the
// reply is always 200 {ok:true}: Telegram redelivers anything else.
func TelegramWebhook(secret string, h UpdateHandler, log *slog.Logger) http.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		res := processWebhook(r, secret, h, log)
		if res.kind != resultOK {
			log.Warn("webhook_rejected", "status", res.status(), "error", errString(res.err))
		}
		writeJSON(w, res.status(), res.body())
	}
}

func processWebhook(r *http.Request, secret string, h UpdateHandler, log *slog.Logger) webhookResult {
	if secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return webhookResult{kind: resultUnauthorized, err: errors.New("secret token mismatch")}
		}
	}

	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
	if err != nil {
		return webhookResult{kind: resultInvalid, err: fmt.Errorf("read body: %w", err)}
	}
	if len(raw) > maxWebhookBytes {
		return webhookResult{kind: resultInvalid, err: fmt.Errorf("body exceeds %d bytes", maxWebhookBytes)}
	}

	u, err := bot.ParseUpdate(raw)
	if err != nil {
		return webhookResult{kind: resultInvalid, err: err}
	}
	log.Debug("webhook_received", "update_id", u.UpdateID, "bytes", len(raw))

	outcome := h.Handle(r.Context(), u)
	log.Info("webhook_handled", "update_id", u.UpdateID, "outcome", string(outcome))
	return webhookResult{kind: resultOK}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
