package telegram

import (
	"context"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ashureev/inspectbot/internal/chat"
)

const (
	minErrorBackoff = time.Second
	maxErrorBackoff = 30 * time.Second
)

// updateSource is the part of Client the poller needs.
type updateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tgbotapi.Update, error)
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
}

// Poller turns getUpdates long-polling into a stream of chat events. It owns
// the delivery offset; callers never see update IDs.
type Poller struct {
	src     updateSource
	timeout time.Duration
	offset  int64
	backoff time.Duration
	logger  *slog.Logger
}

// NewPoller creates a poller using timeout as the long-poll wait.
func NewPoller(src updateSource, timeout time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		src:     src,
		timeout: timeout,
		backoff: minErrorBackoff,
		logger:  logger,
	}
}

// Offset returns the next update ID that will be requested.
func (p *Poller) Offset() int64 {
	return p.offset
}

// Events yields chat events in arrival order until ctx is cancelled. Transport
// errors are logged and produce an empty cycle; they never end the stream.
func (p *Poller) Events(ctx context.Context) iter.Seq[chat.Event] {
	return func(yield func(chat.Event) bool) {
		for ctx.Err() == nil {
			updates, err := p.src.GetUpdates(ctx, p.offset, p.timeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error("Error getting updates", "error", err, "retry_in", p.backoff)
				if !p.sleep(ctx) {
					return
				}
				continue
			}
			p.backoff = minErrorBackoff

			for _, u := range updates {
				// Advance before handling so a crash mid-event never replays it.
				if id := int64(u.UpdateID); id >= p.offset {
					p.offset = id + 1
				}
				ev, ok := p.convert(ctx, u)
				if !ok {
					continue
				}
				if !yield(ev) {
					return
				}
			}
		}
	}
}

func (p *Poller) sleep(ctx context.Context) bool {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	p.backoff = min(p.backoff*2, maxErrorBackoff)
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// convert maps an update to a chat event. Unsupported update types are skipped.
func (p *Poller) convert(ctx context.Context, u tgbotapi.Update) (chat.Event, bool) {
	switch {
	case u.Message != nil && u.Message.Chat != nil:
		return chat.Message(
			strconv.FormatInt(u.Message.Chat.ID, 10),
			strings.TrimSpace(u.Message.Text),
		), true

	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if err := p.src.AnswerCallbackQuery(ctx, cq.ID); err != nil {
			p.logger.Debug("Failed to answer callback query", "callback_id", cq.ID, "error", err)
		}
		var sessionID string
		var ref int64
		switch {
		case cq.Message != nil && cq.Message.Chat != nil:
			sessionID = strconv.FormatInt(cq.Message.Chat.ID, 10)
			ref = int64(cq.Message.MessageID)
		case cq.From != nil:
			sessionID = strconv.FormatInt(cq.From.ID, 10)
		default:
			return chat.Event{}, false
		}
		ev := chat.Action(sessionID, cq.Data, ref)
		ev.CallbackID = cq.ID
		return ev, true

	default:
		p.logger.Debug("Skipping unsupported update", "update_id", u.UpdateID)
		return chat.Event{}, false
	}
}
