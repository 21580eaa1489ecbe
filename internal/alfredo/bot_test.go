package alfredo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredo/internal/calendar"
	"alfredo/internal/router"
	"alfredo/internal/storage"
	kit "alfredo/internal/transport"
	"alfredo/internal/transport/fake"
	"alfredo/internal/text"
	logx "alfredo/pkg/logx"
)

const (
	group   int64 = -100
	adminID int64 = 1
	userID  int64 = 2
)

var today = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type fixedPick int

func (f fixedPick) IntN(int) int { return int(f) }

type env struct {
	bot   *Bot
	ch    *fake.Channel
	store storage.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: ":memory:"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cal, err := calendar.New(calendar.Config{Dir: t.TempDir(), Hour: 18, Duration: 4 * time.Hour, Location: "Z3034"}, logx.Nop())
	require.NoError(t, err)

	ch := fake.New()
	b, err := New(Deps{
		Store:    st,
		Channel:  ch,
		Group:    group,
		Clock:    func() time.Time { return today },
		Calendar: cal,
		Start:    text.DefaultStart,
		Rand:     fixedPick(0),
		Logger:   logx.Nop(),
	})
	require.NoError(t, err)
	return &env{bot: b, ch: ch, store: st}
}

var nextMsgID = 1

func request(from int64, chatType, line string) *router.Request {
	nextMsgID++
	fields := strings.Fields(line)
	rest := ""
	if i := strings.IndexByte(line, ' '); i >= 0 {
		rest = strings.TrimSpace(line[i:])
	}
	return &router.Request{
		Message: kit.Message{ID: nextMsgID, ChatID: 555, ChatType: chatType, FromID: from, FromName: "Anna", Text: line},
		Command: strings.TrimPrefix(fields[0], "/"),
		Args:    fields[1:],
		RawArgs: rest,
		Admin:   from == adminID,
		Logger:  logx.Nop(),
	}
}

func (e *env) run(t *testing.T, h router.HandlerFunc, line string) kit.Message {
	t.Helper()
	req := request(adminID, kit.ChatPrivate, line)
	_ = h(context.Background(), req)
	return req.Message
}

func (e *env) count(t *testing.T) int {
	t.Helper()
	n, err := e.store.Count(context.Background())
	require.NoError(t, err)
	return n
}

func (e *env) find(t *testing.T, date string) storage.Event {
	t.Helper()
	d, err := storage.ParseDate(date)
	require.NoError(t, err)
	ev, err := e.store.FindByDate(context.Background(), d)
	require.NoError(t, err)
	return ev
}

func TestCreateRejectsNonFutureDates(t *testing.T) {
	e := newEnv(t)
	for _, d := range []string{"2024-05-10", "2024-05-09", "1999-01-01"} {
		e.run(t, e.bot.acmdNewAlfredo, "/newalfredo "+d)
		assert.Equal(t, text.Error("Datum darf frühstens heute sein."), e.ch.Last().Text, d)
	}
	assert.Equal(t, 0, e.count(t))
	assert.Empty(t, e.ch.Polls)
}

func TestCreateValidatesArguments(t *testing.T) {
	e := newEnv(t)

	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo")
	assert.Equal(t, text.Error("Befehl erwartet nur einen Parameter, geparsed wurden 0"), e.ch.Last().Text)

	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-01-01 2099-01-02")
	assert.Equal(t, text.Error("Befehl erwartet nur einen Parameter, geparsed wurden 2"), e.ch.Last().Text)

	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo morgen")
	assert.True(t, strings.HasPrefix(e.ch.Last().Text, text.Error("String konnte nicht in ein Datum konvertiert werden")))

	assert.Equal(t, 0, e.count(t))
}

func TestCreatePostsPollAndRejectsDuplicate(t *testing.T) {
	e := newEnv(t)

	src := e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-06-15")
	last := e.ch.Last()
	assert.Equal(t, "Umfrage wurde erstellt ✅", last.Text)
	assert.Equal(t, src.ID, last.ReplyTo)

	require.Len(t, e.ch.Polls, 1)
	poll := e.ch.Polls[0]
	assert.Equal(t, group, poll.ChatID)
	assert.False(t, poll.Anonymous)
	assert.Equal(t, []string{"Teilnahme", "Teilnahme (+1 Gast)", "Absage"}, poll.Options)
	assert.Equal(t, "Alfredo am Montag, 15. Juni 2099 (18:00 Uhr)", poll.Question)

	ev := e.find(t, "2099-06-15")
	assert.Equal(t, poll.MessageID, ev.MessageID)
	assert.Equal(t, poll.Question, ev.Description)
	assert.Equal(t, poll.MessageID, e.ch.PinnedID())

	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-06-15")
	assert.Equal(t, text.Error("An diesem Termin ist bereits ein Alfredo eingetragen (Montag, 15. Juni 2099)"), e.ch.Last().Text)
	assert.Equal(t, 1, e.count(t))
	assert.Len(t, e.ch.Polls, 1)
}

func TestCreateAbortsWhenPollFails(t *testing.T) {
	e := newEnv(t)
	e.ch.Fail(fake.OpPostPoll, 1)

	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-06-15")
	assert.Equal(t, text.Error("Telegram API meldete einen Fehler: injected failure"), e.ch.Last().Text)
	assert.Equal(t, 0, e.count(t))
	assert.Zero(t, e.ch.PinnedID())
}

func TestEndToEndPinFollowsSoonestEvent(t *testing.T) {
	e := newEnv(t)

	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2199-01-01")
	far := e.find(t, "2199-01-01")
	assert.Equal(t, 1, e.count(t))
	assert.Equal(t, far.MessageID, e.ch.PinnedID())

	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-06-15")
	near := e.find(t, "2099-06-15")
	assert.Equal(t, 2, e.count(t))
	assert.Equal(t, near.MessageID, e.ch.PinnedID())
	assert.Contains(t, e.ch.Unpins, far.MessageID)

	e.run(t, e.bot.acmdCancelAlfredo, "/cancelalfredo 2099-06-15")
	assert.Equal(t, 1, e.count(t))
	assert.Equal(t, far.MessageID, e.ch.PinnedID())

	e.run(t, e.bot.acmdCancelAlfredo, "/cancelalfredo 2199-01-01")
	assert.Equal(t, 0, e.count(t))
	assert.Zero(t, e.ch.PinnedID())
}

func TestCancelUnknownDate(t *testing.T) {
	e := newEnv(t)
	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-06-15")

	e.run(t, e.bot.acmdCancelAlfredo, "/cancelalfredo 2099-06-16")
	assert.Equal(t, text.Error("An diesem Datum ist kein Alfredo eingetragen (Dienstag, 16. Juni 2099)"), e.ch.Last().Text)
	assert.Equal(t, 1, e.count(t))
}

func TestCancelRejectsPastDate(t *testing.T) {
	e := newEnv(t)
	e.run(t, e.bot.acmdCancelAlfredo, "/cancelalfredo 2024-05-10")
	assert.Equal(t, text.Error("Datum darf frühstens heute sein."), e.ch.Last().Text)
}

func TestCancelAlwaysRemovesRecord(t *testing.T) {
	cases := []struct {
		name      string
		inject    []string
		wantLines []string
	}{
		{
			name:      "all steps succeed",
			wantLines: []string{text.Success("Absage gesendet"), text.Success("Umfrage beendet"), text.Success("Aus der Datenbank entfernt")},
		},
		{
			name:      "notice fails",
			inject:    []string{fake.OpSendMessage},
			wantLines: []string{text.Failure("Absage gesendet"), text.Success("Umfrage beendet"), text.Success("Aus der Datenbank entfernt")},
		},
		{
			name:      "notice and stop fail",
			inject:    []string{fake.OpSendMessage, fake.OpStopPoll},
			wantLines: []string{text.Failure("Absage gesendet"), text.Failure("Umfrage beendet"), text.Success("Aus der Datenbank entfernt")},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-06-15")
			e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-07-15")
			ev := e.find(t, "2099-06-15")
			before := e.count(t)

			for _, op := range tc.inject {
				e.ch.Fail(op, 1)
			}
			e.run(t, e.bot.acmdCancelAlfredo, "/cancelalfredo 2099-06-15")

			assert.Equal(t, before-1, e.count(t))
			reply := e.ch.Last().Text
			for _, line := range tc.wantLines {
				assert.Contains(t, reply, line)
			}
			if len(tc.inject) == 0 {
				sent := e.ch.Messages()
				var notice *fake.Sent
				for i := range sent {
					if sent[i].ChatID == group && sent[i].ReplyTo == ev.MessageID {
						notice = &sent[i]
					}
				}
				require.NotNil(t, notice)
				assert.Contains(t, notice.Text, "Montag, 15. Juni 2099")
				assert.True(t, e.ch.Poll(ev.MessageID).Stopped)
			}
		})
	}
}

func TestReminder(t *testing.T) {
	e := newEnv(t)

	e.run(t, e.bot.acmdReminder, "/reminder")
	assert.Equal(t, text.Error("Morgen ist kein Alfredo eingetragen."), e.ch.Last().Text)
	assert.Equal(t, 0, e.count(t))

	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2024-05-11")
	ev := e.find(t, "2024-05-11")
	before := len(e.ch.Messages())

	e.run(t, e.bot.acmdReminder, "/reminder")
	sent := e.ch.Messages()[before:]
	require.Len(t, sent, 2)
	assert.Equal(t, group, sent[0].ChatID)
	assert.Equal(t, ev.MessageID, sent[0].ReplyTo)
	assert.Equal(t, text.Reminders()[0], sent[0].Text)
	assert.Equal(t, "Erinnerung wurde gesendet ✅", sent[1].Text)

	e.ch.Fail(fake.OpSendMessage, 1)
	e.run(t, e.bot.acmdReminder, "/reminder")
	assert.Equal(t, text.Error("Telegram API meldete einen Fehler: injected failure"), e.ch.Last().Text)
	assert.Equal(t, 1, e.count(t))
}

func TestReminderReportsStoreFailure(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.Close())

	e.run(t, e.bot.acmdReminder, "/reminder")
	assert.Equal(t, text.Error("Datenbankfehler: "+storage.ErrClosed.Error()), e.ch.Last().Text)
	require.Len(t, e.ch.Messages(), 1)
}

func TestPollUsesConfiguredStart(t *testing.T) {
	e := newEnv(t)
	e.bot.start = 19*time.Hour + 30*time.Minute

	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-06-15")
	require.Len(t, e.ch.Polls, 1)
	assert.Equal(t, "Alfredo am Montag, 15. Juni 2099 (19:30 Uhr)", e.ch.Polls[0].Question)
}

func TestMaintainWithoutEventIsSilent(t *testing.T) {
	e := newEnv(t)
	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-06-15")
	before := len(e.ch.Messages())

	e.bot.Maintain(context.Background())
	assert.Len(t, e.ch.Messages(), before)
	assert.Equal(t, 1, e.count(t))
}

func TestMaintainRemindsAndRepins(t *testing.T) {
	e := newEnv(t)
	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2024-05-11")
	ev := e.find(t, "2024-05-11")
	e.ch.SetPinned(9999)
	before := len(e.ch.Messages())

	e.bot.Maintain(context.Background())
	sent := e.ch.Messages()[before:]
	require.Len(t, sent, 1)
	assert.Equal(t, ev.MessageID, sent[0].ReplyTo)
	assert.Equal(t, ev.MessageID, e.ch.PinnedID())
	assert.Contains(t, e.ch.Unpins, 9999)
}

func TestMaintainSurvivesFailures(t *testing.T) {
	e := newEnv(t)
	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2024-05-11")
	e.ch.Fail(fake.OpSendMessage, -1)
	e.ch.Fail(fake.OpChatState, -1)

	assert.NotPanics(t, func() { e.bot.Maintain(context.Background()) })
}

func TestSyncPin(t *testing.T) {
	t.Run("chat state failure leaves pins untouched", func(t *testing.T) {
		e := newEnv(t)
		e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-06-15")
		e.ch.SetPinned(42)
		e.ch.Fail(fake.OpChatState, 1)

		e.bot.SyncPin(context.Background())
		assert.Equal(t, 42, e.ch.PinnedID())
	})

	t.Run("no future events unpins", func(t *testing.T) {
		e := newEnv(t)
		e.ch.SetPinned(42)
		e.bot.SyncPin(context.Background())
		assert.Zero(t, e.ch.PinnedID())
		assert.Equal(t, []int{42}, e.ch.Unpins)
	})

	t.Run("correct pin is kept", func(t *testing.T) {
		e := newEnv(t)
		e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-06-15")
		pins := len(e.ch.Pins)
		e.bot.SyncPin(context.Background())
		assert.Len(t, e.ch.Pins, pins)
		assert.Empty(t, e.ch.Unpins)
	})
}

func TestAnnounce(t *testing.T) {
	e := newEnv(t)

	e.run(t, e.bot.acmdAnnounce, "/announce")
	assert.Equal(t, text.Error("Befehl benötigt Parameter"), e.ch.Last().Text)

	e.run(t, e.bot.acmdAnnounce, "/announce Heute  gibt es\nPizza")
	sent := e.ch.Messages()
	require.GreaterOrEqual(t, len(sent), 2)
	ann := sent[len(sent)-2]
	assert.Equal(t, group, ann.ChatID)
	assert.Equal(t, "📣 Heute  gibt es\nPizza", ann.Text)
	assert.Equal(t, "Ankündigung wurde gesendet ✅", sent[len(sent)-1].Text)

	e.ch.Fail(fake.OpSendMessage, 1)
	e.run(t, e.bot.acmdAnnounce, "/announce test")
	assert.Equal(t, text.Error("Telegram API meldete einen Fehler: injected failure"), e.ch.Last().Text)
}

func TestShowDates(t *testing.T) {
	e := newEnv(t)

	e.run(t, e.bot.cmdShowDates, "/termine")
	assert.Equal(t, "Es wurden keine weiteren Termine angekündigt 🙁", e.ch.Last().Text)

	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-06-15")
	e.run(t, e.bot.cmdShowDates, "/termine")
	assert.Equal(t, "Der (einzige) nächste Termin ist am Montag, 15. Juni 2099.", e.ch.Last().Text)

	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-06-01")
	e.run(t, e.bot.cmdShowDates, "/termine")
	assert.Equal(t, "Die nächsten 2 Termine:\n\n• Montag, 1. Juni 2099\n• Montag, 15. Juni 2099\n", e.ch.Last().Text)
}

func TestCalendar(t *testing.T) {
	e := newEnv(t)

	e.run(t, e.bot.cmdCalendar, "/kalender")
	assert.Contains(t, e.ch.Last().Text, "keine weiteren Termine")
	assert.Empty(t, e.ch.Docs)

	e.run(t, e.bot.acmdNewAlfredo, "/newalfredo 2099-06-15")
	src := e.run(t, e.bot.cmdCalendar, "/kalender")
	require.Len(t, e.ch.Docs, 1)
	doc := e.ch.Docs[0]
	assert.Equal(t, "2099-06-15_alfredo.ics", doc.FileName)
	assert.Equal(t, src.ID, doc.ReplyTo)
	assert.Contains(t, string(doc.Body), "SUMMARY:Alfredo")
}

func TestStartAndHelp(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.bot.cmdStart(ctx, request(adminID, kit.ChatPrivate, "/start")))
	assert.Contains(t, e.ch.Last().Text, "Mamma Mia!")
	assert.Contains(t, e.ch.Last().Text, "Version: "+text.Version)
	assert.True(t, strings.HasSuffix(e.ch.Last().Text, "Du bist ein Admin!"))

	require.NoError(t, e.bot.cmdStart(ctx, request(adminID, kit.ChatGroup, "/start")))
	assert.NotContains(t, e.ch.Last().Text, "Admin")

	require.NoError(t, e.bot.cmdHelp(ctx, request(userID, kit.ChatPrivate, "/help")))
	help := e.ch.Last().Text
	assert.Contains(t, help, "/termine: Zeigt die nächsten Alfredotermine")
	assert.NotContains(t, help, "Adminkommandos")

	require.NoError(t, e.bot.cmdHelp(ctx, request(adminID, kit.ChatPrivate, "/help")))
	help = e.ch.Last().Text
	assert.Contains(t, help, "Adminkommandos:")
	assert.Contains(t, help, "/newalfredo <iso-date> Umfrage für neuen Alfredotermin posten")
	assert.Contains(t, help, "/cancelalfredo <iso-date>")

	require.NoError(t, e.bot.cmdMenu(ctx, request(userID, kit.ChatGroup, "/karte")))
	last := e.ch.Last()
	assert.Contains(t, last.Text, MenuURL)
	assert.Equal(t, "MarkdownV2", last.Options.ParseMode)
	assert.True(t, last.Options.DisablePreview)
}

func TestMenuCommandsArePublicOnly(t *testing.T) {
	e := newEnv(t)
	var names []string
	for _, c := range e.bot.MenuCommands() {
		names = append(names, c.Command)
	}
	assert.Equal(t, []string{"termine", "karte", "kalender", "start", "help"}, names)
}

func TestNonAdminNeverMutates(t *testing.T) {
	e := newEnv(t)
	r := router.New(logx.Nop(), e.ch, []int64{adminID})
	r.SetRegistry(e.bot.Commands())

	for _, line := range []string{"/newalfredo 2099-06-15", "/cancelalfredo 2099-06-15", "/reminder", "/announce hallo"} {
		r.Route(context.Background(), kit.Message{ID: 7, ChatID: 555, ChatType: kit.ChatGroup, FromID: userID, FromName: "Bob", Text: line})
		assert.Equal(t, text.Error("Du bist kein Admin."), e.ch.Last().Text, line)
	}
	assert.Equal(t, 0, e.count(t))
	assert.Empty(t, e.ch.Polls)
	for _, s := range e.ch.Messages() {
		assert.NotEqual(t, group, s.ChatID)
	}
}
