package bot

import (
	"context"
	"log/slog"

	"github.com/lojf/weatherbot/internal/agent"
)

// FallbackMessage is sent when the agent cannot produce an answer.
const FallbackMessage = "Sorry, I couldn't process your message right now. Please try again later."

type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"   // update carries no message
	OutcomeSkipped   Outcome = "skipped"   // message without chat id or text
	OutcomeDuplicate Outcome = "duplicate" // update id already handled
	OutcomeReplied   Outcome = "replied"
	OutcomeFallback  Outcome = "fallback"
	OutcomePending   Outcome = "pending" // claimed, agent still running
)

// Sender delivers a text message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) bool
}

// JournalEntry describes one handled update.
type JournalEntry struct {
	UpdateID  int64
	ChatID    int64
	Username  string
	Text      string
	Outcome   Outcome
	Delivered bool
}

// Journal remembers handled updates so a redelivery is not answered twice.
// Claim reserves the update id and reports false when another delivery
// already holds it; Record stores the final outcome of a claimed update.
type Journal interface {
	Claim(ctx context.Context, e JournalEntry) (bool, error)
	Record(ctx context.Context, e JournalEntry) error
}

// Dispatcher relays a message's text to the agent and the answer back to the chat.
type Dispatcher struct {
	agent   agent.Runner
	sender  Sender
	journal Journal
	log     *slog.Logger
}

// NewDispatcher wires the relay. journal may be nil.
func NewDispatcher(runner agent.Runner, sender Sender, journal Journal, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{agent: runner, sender: sender, journal: journal, log: logger}
}

// Handle answers one update. The reply and the journal write run on a
// context detached from ctx, so a caller that hangs up while the agent is
// working still gets its answer or the fallback delivered.
func (d *Dispatcher) Handle(ctx context.Context, u *Update) Outcome {
	if u == nil || u.Message == nil {
		d.log.Debug("update_ignored", "reason", "no message")
		return OutcomeIgnored
	}
	m := u.Message
	chatID, hasChat := m.ChatID()
	text := m.Text
	user := m.Username()
	d.log.Info("message_received", "update_id", u.UpdateID, "username", user, "text", text)

	if !hasChat || text == "" {
		d.log.Debug("message_skipped", "update_id", u.UpdateID, "has_chat", hasChat, "text_len", len(text))
		return OutcomeSkipped
	}

	entry := JournalEntry{UpdateID: u.UpdateID, ChatID: chatID, Username: user, Text: text, Outcome: OutcomePending}
	journaled := d.journal != nil && u.UpdateID != 0
	if journaled {
		claimed, err := d.journal.Claim(ctx, entry)
		if err != nil {
			d.log.Warn("journal_claim_failed", "update_id", u.UpdateID, "error", err.Error())
		} else if !claimed {
			d.log.Info("update_duplicate", "update_id", u.UpdateID)
			return OutcomeDuplicate
		}
	}

	entry.Outcome = OutcomeReplied
	reply := ""
	res, err := d.agent.Run(ctx, text)
	if err != nil {
		d.log.Error("agent_run_failed", "chat_id", chatID, "error", err.Error())
		entry.Outcome, reply = OutcomeFallback, FallbackMessage
	} else {
		reply = res.FinalOutput
		d.log.Info("agent_run_ok", "chat_id", chatID, "turns", res.Turns, "output_len", len(reply))
	}

	sendCtx := context.WithoutCancel(ctx)
	entry.Delivered = d.sender.SendMessage(sendCtx, chatID, reply)

	if journaled {
		if err := d.journal.Record(sendCtx, entry); err != nil {
			d.log.Warn("journal_record_failed", "update_id", u.UpdateID, "error", err.Error())
		}
	}
	return entry.Outcome
}
