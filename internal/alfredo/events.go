package alfredo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"alfredo/internal/router"
	"alfredo/internal/safecall"
	"alfredo/internal/storage"
	kit "alfredo/internal/transport"
	"alfredo/internal/text"
)

// futureDate validates the single date argument shared by create and cancel.
// On failure the error reply has already been sent.
func (b *Bot) futureDate(ctx context.Context, req *router.Request) (time.Time, bool) {
	if n := len(req.Args); n != 1 {
		b.replyError(ctx, req, fmt.Sprintf("Befehl erwartet nur einen Parameter, geparsed wurden %d", n))
		return time.Time{}, false
	}
	date, err := storage.ParseDate(req.Args[0])
	if err != nil {
		b.replyError(ctx, req, "String konnte nicht in ein Datum konvertiert werden: "+err.Error())
		return time.Time{}, false
	}
	if !date.After(b.Today()) {
		b.replyError(ctx, req, "Datum darf frühstens heute sein.")
		return time.Time{}, false
	}
	return date, true
}

func (b *Bot) acmdNewAlfredo(ctx context.Context, req *router.Request) error {
	date, ok := b.futureDate(ctx, req)
	if !ok {
		return nil
	}

	duplicate := func() {
		b.replyError(ctx, req, "An diesem Termin ist bereits ein Alfredo eingetragen ("+text.FormatDate(date)+")")
	}
	if _, err := b.store.FindByDate(ctx, date); err == nil {
		duplicate()
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		b.replyError(ctx, req, "Datenbankfehler: "+err.Error())
		return err
	}

	description := text.PollQuestion(date, b.start)
	msgID, err := safecall.Do(ctx, req.Logger, "post_poll", func(c context.Context) (int, error) {
		return b.ch.PostPoll(c, b.group, description, text.PollOptions, false)
	})
	if err != nil {
		b.replyError(ctx, req, "Telegram API meldete einen Fehler: "+apiError(err))
		return nil
	}

	ev, err := b.store.Create(ctx, date, description, msgID)
	if errors.Is(err, storage.ErrDuplicateDate) {
		duplicate()
		return nil
	}
	if err != nil {
		b.replyError(ctx, req, "Datenbankfehler: "+err.Error())
		return err
	}
	req.Logger.Info("event created", logDate(ev.Date), logMsgID(ev.MessageID))

	b.SyncPin(ctx)
	b.reply(ctx, req, "Umfrage wurde erstellt "+text.Emoji("check"))
	return nil
}

func (b *Bot) acmdCancelAlfredo(ctx context.Context, req *router.Request) error {
	date, ok := b.futureDate(ctx, req)
	if !ok {
		return nil
	}

	ev, err := b.store.FindByDate(ctx, date)
	if errors.Is(err, storage.ErrNotFound) {
		b.replyError(ctx, req, "An diesem Datum ist kein Alfredo eingetragen ("+text.FormatDate(date)+")")
		return nil
	}
	if err != nil {
		b.replyError(ctx, req, "Datenbankfehler: "+err.Error())
		return err
	}

	var status strings.Builder
	step := func(ok bool, msg string) {
		if ok {
			status.WriteString(text.Success(msg) + "\n")
		} else {
			status.WriteString(text.Failure(msg) + "\n")
		}
	}

	notice := text.Emoji("cross") + " Der Alfredo am " + text.FormatDate(ev.Date) + " muss leider ausfallen!"
	step(safecall.Run(ctx, req.Logger, "send_cancel_notice", func(c context.Context) error {
		_, err := b.ch.SendMessage(c, b.group, notice, &kit.SendOptions{ReplyTo: ev.MessageID})
		return err
	}), "Absage gesendet")

	step(safecall.Run(ctx, req.Logger, "stop_poll", func(c context.Context) error {
		return b.ch.StopPoll(c, b.group, ev.MessageID)
	}), "Umfrage beendet")

	delErr := b.store.Delete(ctx, ev.ID)
	if delErr != nil {
		req.Logger.Error("failed to delete event", logDate(ev.Date), logErr(delErr))
	} else {
		req.Logger.Info("event cancelled", logDate(ev.Date), logMsgID(ev.MessageID))
	}
	step(delErr == nil, "Aus der Datenbank entfernt")

	b.SyncPin(ctx)
	b.reply(ctx, req, "Absage für "+text.FormatDate(ev.Date)+":\n\n"+status.String())
	return delErr
}

func (b *Bot) cmdShowDates(ctx context.Context, req *router.Request) error {
	events, err := b.store.ListFuture(ctx, b.Today())
	if err != nil {
		b.replyError(ctx, req, "Datenbankfehler: "+err.Error())
		return err
	}
	b.reply(ctx, req, listText(events))
	return nil
}

func listText(events []storage.Event) string {
	switch len(events) {
	case 0:
		return "Es wurden keine weiteren Termine angekündigt " + text.Emoji("frowning")
	case 1:
		return "Der (einzige) nächste Termin ist am " + text.FormatDate(events[0].Date) + "."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Die nächsten %d Termine:\n\n", len(events))
	for _, ev := range events {
		sb.WriteString(text.Bullet(text.FormatDate(ev.Date)))
	}
	return sb.String()
}

func (b *Bot) cmdCalendar(ctx context.Context, req *router.Request) error {
	events, err := b.store.ListFuture(ctx, b.Today())
	if err != nil {
		b.replyError(ctx, req, "Datenbankfehler: "+err.Error())
		return err
	}
	if len(events) == 0 {
		b.reply(ctx, req, listText(events))
		return nil
	}
	next := events[0]

	path, err := b.cal.File(next.Date)
	if err != nil {
		b.replyError(ctx, req, "Kalenderdatei konnte nicht erstellt werden")
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		b.replyError(ctx, req, "Kalenderdatei konnte nicht gelesen werden")
		return err
	}
	defer f.Close()

	safecall.Run(ctx, req.Logger, "send_document", func(c context.Context) error {
		_, err := b.ch.SendDocument(c, req.Message.ChatID, kit.Document{
			FileName: filepath.Base(path),
			MIME:     "text/calendar",
			Caption:  text.Emoji("download") + " " + text.PollQuestion(next.Date, b.start),
			Reader:   f,
		}, &kit.SendOptions{ReplyTo: req.Message.ID})
		return err
	})
	return nil
}
