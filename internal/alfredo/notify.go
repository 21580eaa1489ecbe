package alfredo

import (
	"context"
	"errors"

	"alfredo/internal/router"
	"alfredo/internal/safecall"
	"alfredo/internal/storage"
	kit "alfredo/internal/transport"
	"alfredo/internal/text"
	logx "alfredo/pkg/logx"
)

var errNoEventTomorrow = errors.New("no event tomorrow")

// lookupError marks a store failure while looking up tomorrow's event.
type lookupError struct{ err error }

func (e lookupError) Error() string { return e.err.Error() }
func (e lookupError) Unwrap() error { return e.err }

// sendReminder posts a reminder for tomorrow's event, replying to its poll.
// It returns errNoEventTomorrow if there is nothing to remind about.
func (b *Bot) sendReminder(ctx context.Context, log logx.Logger) (storage.Event, error) {
	tomorrow := b.Today().AddDate(0, 0, 1)
	ev, err := b.store.FindByDate(ctx, tomorrow)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Event{}, errNoEventTomorrow
	}
	if err != nil {
		return storage.Event{}, lookupError{err: err}
	}

	phrase := text.Reminder(b.rng)
	_, err = safecall.Do(ctx, log, "send_reminder", func(c context.Context) (int, error) {
		return b.ch.SendMessage(c, b.group, phrase, &kit.SendOptions{ReplyTo: ev.MessageID})
	})
	return ev, err
}

func (b *Bot) acmdReminder(ctx context.Context, req *router.Request) error {
	ev, err := b.sendReminder(ctx, req.Logger)
	var lookupErr lookupError
	switch {
	case errors.Is(err, errNoEventTomorrow):
		b.replyError(ctx, req, "Morgen ist kein Alfredo eingetragen.")
		return nil
	case errors.As(err, &lookupErr):
		b.replyError(ctx, req, "Datenbankfehler: "+lookupErr.Error())
		return err
	case err != nil:
		b.replyError(ctx, req, "Telegram API meldete einen Fehler: "+apiError(err))
		return nil
	}
	req.Logger.Info("reminder sent", logDate(ev.Date))
	b.reply(ctx, req, "Erinnerung wurde gesendet "+text.Emoji("check"))
	return nil
}

func (b *Bot) acmdAnnounce(ctx context.Context, req *router.Request) error {
	if req.RawArgs == "" {
		b.replyError(ctx, req, "Befehl benötigt Parameter")
		return nil
	}
	announcement := text.Emoji("megaphone") + " " + req.RawArgs
	_, err := safecall.Do(ctx, req.Logger, "send_announcement", func(c context.Context) (int, error) {
		return b.ch.SendMessage(c, b.group, announcement, &kit.SendOptions{DisablePreview: true})
	})
	if err != nil {
		b.replyError(ctx, req, "Telegram API meldete einen Fehler: "+apiError(err))
		return nil
	}
	b.reply(ctx, req, "Ankündigung wurde gesendet "+text.Emoji("check"))
	return nil
}
