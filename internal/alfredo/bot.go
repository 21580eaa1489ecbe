// Package alfredo implements the event lifecycle: polls, reminders,
// cancellations and the pinned-message invariant.
package alfredo

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"alfredo/internal/calendar"
	"alfredo/internal/router"
	"alfredo/internal/storage"
	kit "alfredo/internal/transport"
	"alfredo/internal/text"
	logx "alfredo/pkg/logx"
)

const (
	MenuURL      = "https://github.com/TarEnethil/alfredo/releases/latest/download/menu.pdf"
	BugReportURL = "https://github.com/TarEnethil/alfredo/issues"
	Maintainer   = "@TriviaThorsten"
)

type Deps struct {
	Store   storage.Store
	Channel kit.Channel
	// Group is the chat polls, reminders and announcements go to.
	Group int64
	// Location decides what "today" is. Defaults to UTC.
	Location *time.Location
	Clock    func() time.Time
	// Calendar is optional; without it /kalender is not offered.
	Calendar *calendar.Generator
	// Start is when an evening begins, as offset from midnight.
	Start  time.Duration
	Rand   text.Picker
	Logger   logx.Logger
}

// Bot is the orchestrator. It is built once at startup and shared by the
// command handlers and the maintenance job.
type Bot struct {
	store storage.Store
	ch    kit.Channel
	group int64
	loc   *time.Location
	now   func() time.Time
	cal   *calendar.Generator
	start time.Duration
	rng   text.Picker
	log   logx.Logger
}

func New(d Deps) (*Bot, error) {
	if d.Store == nil {
		return nil, errors.New("alfredo: store is nil")
	}
	if d.Channel == nil {
		return nil, errors.New("alfredo: channel is nil")
	}
	if d.Group == 0 {
		return nil, errors.New("alfredo: group is not set")
	}
	b := &Bot{
		store: d.Store,
		ch:    d.Channel,
		group: d.Group,
		loc:   d.Location,
		now:   d.Clock,
		cal:   d.Calendar,
		start: d.Start,
		rng:   d.Rand,
		log:   d.Logger,
	}
	if b.loc == nil {
		b.loc = time.UTC
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	if b.log.IsZero() {
		b.log = logx.Nop()
	}
	b.log = b.log.With(logx.String("comp", "alfredo"))
	return b, nil
}

// Today is the current calendar date in the configured zone.
func (b *Bot) Today() time.Time {
	return storage.DateOf(b.now().In(b.loc))
}

// Commands is the router registration table.
func (b *Bot) Commands() []router.Command {
	cmds := []router.Command{
		{Name: "termine", Description: "Zeigt die nächsten Alfredotermine", Handle: b.cmdShowDates},
		{Name: "karte", Description: "Verlinkt die Alfredokarte", Handle: b.cmdMenu},
	}
	if b.cal != nil {
		cmds = append(cmds, router.Command{Name: "kalender", Description: "Sendet den nächsten Termin als Kalenderdatei", Handle: b.cmdCalendar})
	}
	cmds = append(cmds,
		router.Command{Name: "start", Description: "Zeigt die Willkommensnachricht an", Handle: b.cmdStart},
		router.Command{Name: "help", Description: "Zeigt die verfügbaren Kommandos", Handle: b.cmdHelp},

		router.Command{Name: "newalfredo", Usage: "<iso-date>", Description: "Umfrage für neuen Alfredotermin posten", Access: router.AccessAdmin, Handle: b.acmdNewAlfredo},
		router.Command{Name: "cancelalfredo", Usage: "<iso-date>", Description: "Alfredotermin absagen", Access: router.AccessAdmin, Handle: b.acmdCancelAlfredo},
		router.Command{Name: "reminder", Description: "Erinnerung für den morgigen Alfredo posten", Access: router.AccessAdmin, Handle: b.acmdReminder},
		router.Command{Name: "announce", Usage: "<announcement>", Description: "Ankündigung in der Gruppe posten", Access: router.AccessAdmin, Handle: b.acmdAnnounce},
	)
	return cmds
}

// MenuCommands is the public command list registered with the platform.
func (b *Bot) MenuCommands() []kit.BotCommand {
	var out []kit.BotCommand
	for _, c := range b.Commands() {
		if c.Access != router.AccessEveryone {
			continue
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

func (b *Bot) reply(ctx context.Context, req *router.Request, msg string) bool {
	return router.Reply(ctx, b.ch, req, msg, nil)
}

func (b *Bot) replyError(ctx context.Context, req *router.Request, msg string) {
	router.ReplyError(ctx, b.ch, req, msg)
}

func usageLine(c router.Command) string {
	parts := []string{"/" + c.Name}
	if c.Usage != "" {
		parts = append(parts, c.Usage)
	}
	return strings.Join(parts, " ")
}
