package alfredo

import (
	"context"
	"errors"
	"time"

	"alfredo/internal/safecall"
	"alfredo/internal/storage"
	logx "alfredo/pkg/logx"
)

// SyncPin makes the group's pinned message the poll of the soonest future
// event, or unpins when there is none. It only ever looks at the most recent
// pin; a group with several pinned messages is not reconciled. Failures are
// logged and never returned.
func (b *Bot) SyncPin(ctx context.Context) {
	log := b.log.With(logx.String("op", "sync_pin"))

	events, err := b.store.ListFuture(ctx, b.Today())
	if err != nil {
		log.Error("failed to list future events", logErr(err))
		return
	}

	pinned, ok := safecall.Try(ctx, log, "chat_state", func(c context.Context) (int, error) {
		st, err := b.ch.ChatState(c, b.group)
		return st.PinnedMessageID, err
	})
	if !ok {
		log.Warn("could not fetch chat state, leaving pins untouched")
		return
	}

	unpin := 0
	if len(events) > 0 {
		target := events[0].MessageID
		if pinned == 0 || pinned != target {
			if safecall.Run(ctx, log, "pin", func(c context.Context) error {
				return b.ch.PinMessage(c, b.group, target)
			}) {
				log.Info("pinned poll", logDate(events[0].Date), logMsgID(target))
			}
			if pinned != 0 {
				unpin = pinned
			}
		}
	} else if pinned != 0 {
		unpin = pinned
	}

	if unpin != 0 {
		if safecall.Run(ctx, log, "unpin", func(c context.Context) error {
			return b.ch.UnpinMessage(c, b.group, unpin)
		}) {
			log.Info("unpinned message", logMsgID(unpin))
		}
	}
}

// Maintain sends tomorrow's reminder (silently skipping when there is none)
// and then synchronizes the pin. Errors are logged, never returned.
func (b *Bot) Maintain(ctx context.Context) {
	log := b.log.With(logx.String("op", "maintenance"))
	log.Info("maintenance started")

	ev, err := b.sendReminder(ctx, log)
	switch {
	case errors.Is(err, errNoEventTomorrow):
		log.Info("no event tomorrow, no reminder sent")
	case err != nil:
		log.Error("reminder failed", logErr(err))
	default:
		log.Info("reminder sent", logDate(ev.Date))
	}

	b.SyncPin(ctx)
}

func logDate(t time.Time) logx.Field { return logx.String("date", t.Format(storage.DateLayout)) }
func logMsgID(id int) logx.Field     { return logx.Int("message_id", id) }
func logErr(err error) logx.Field    { return logx.Err(err) }

// apiError strips the operation prefix added by safecall.
func apiError(err error) string {
	if u := errors.Unwrap(err); u != nil {
		return u.Error()
	}
	return err.Error()
}
