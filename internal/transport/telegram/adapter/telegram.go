// Package adapter implements the transport interfaces on top of telebot.
package adapter

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "alfredo/internal/runtime/supervisor"
	kit "alfredo/internal/transport"
	logx "alfredo/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot

	outMu sync.RWMutex
	out   chan<- kit.Message
	ctx   context.Context

	runMu   sync.Mutex
	running bool
	// sup owns the poll loop and the stop watcher. Created on Start, cancelled on Stop.
	sup *rtsup.Supervisor
}

var (
	_ kit.Channel = (*Adapter)(nil)
	_ kit.Source  = (*Adapter)(nil)
	_ logx.Sender = (*Adapter)(nil)
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if msg, ok := toMessage(c.Message()); ok {
			a.deliver(msg)
		}
		return nil
	})
	return a, nil
}

// Username returns the bot's own username as reported by getMe.
func (a *Adapter) Username() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func toMessage(m *tele.Message) (kit.Message, bool) {
	if m == nil || m.Chat == nil {
		return kit.Message{}, false
	}
	msg := kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ChatType: string(m.Chat.Type),
		Text:     m.Text,
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromName = m.Sender.FirstName
		msg.FromUsername = m.Sender.Username
	}
	return msg, true
}

// deliver blocks until the consumer accepts the message or the adapter stops.
// Commands must not be dropped, the bot has a handful of users at most.
func (a *Adapter) deliver(msg kit.Message) {
	a.outMu.RLock()
	out, ctx := a.out, a.ctx
	a.outMu.RUnlock()
	if out == nil {
		return
	}
	select {
	case out <- msg:
	case <-ctx.Done():
		a.log.Debug("message dropped on shutdown", logx.Int("message_id", msg.ID))
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	a.outMu.Lock()
	a.out = out
	a.ctx = sup.Context()
	a.outMu.Unlock()

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// Start blocks until Stop. It can exit on its own in some failure modes,
	// so run it under a restart loop.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started", logx.String("bot", a.Username()))
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	wasRunning := a.running
	a.running = false
	sup := a.sup
	a.sup = nil
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		a.log.Debug("telegram stop called but not running")
		return nil
	}
	// Keep shutdown snappy even if getUpdates is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := sup.Stop(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func sendOptions(opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{}
	if opt == nil {
		return so
	}
	so.ParseMode = tele.ParseMode(opt.ParseMode)
	so.DisableWebPagePreview = opt.DisablePreview
	if opt.ReplyTo != 0 {
		so.ReplyTo = &tele.Message{ID: opt.ReplyTo}
	}
	return so
}

func stored(chatID int64, messageID int) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
}

func (a *Adapter) PostPoll(ctx context.Context, chatID int64, question string, options []string, anonymous bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p := &tele.Poll{
		Type:      tele.PollRegular,
		Question:  question,
		Anonymous: anonymous,
	}
	p.AddOptions(options...)
	msg, err := a.bot.Send(tele.ChatID(chatID), p)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// SendMessage splits long texts, replying (if requested) with the first chunk.
// The id of the first message is returned.
func (a *Adapter) SendMessage(ctx context.Context, chatID int64, text string, opt *kit.SendOptions) (int, error) {
	first := 0
	for i, chunk := range splitTelegramText(text, telegramTextLimit) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		so := sendOptions(opt)
		if i > 0 {
			so.ReplyTo = nil
		}
		msg, err := a.bot.Send(tele.ChatID(chatID), chunk, so)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = msg.ID
		}
	}
	return first, nil
}

func (a *Adapter) SendDocument(ctx context.Context, chatID int64, doc kit.Document, opt *kit.SendOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d := &tele.Document{
		File:     tele.FromReader(doc.Reader),
		FileName: doc.FileName,
		MIME:     doc.MIME,
		Caption:  doc.Caption,
	}
	msg, err := a.bot.Send(tele.ChatID(chatID), d, sendOptions(opt))
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (a *Adapter) StopPoll(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.bot.StopPoll(stored(chatID, messageID))
	return err
}

func (a *Adapter) PinMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Pin(stored(chatID, messageID))
}

func (a *Adapter) UnpinMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Unpin(tele.ChatID(chatID), messageID)
}

func (a *Adapter) ChatState(ctx context.Context, chatID int64) (kit.ChatState, error) {
	if err := ctx.Err(); err != nil {
		return kit.ChatState{}, err
	}
	chat, err := a.bot.ChatByID(chatID)
	if err != nil {
		return kit.ChatState{}, err
	}
	var st kit.ChatState
	if chat.PinnedMessage != nil {
		st.PinnedMessageID = chat.PinnedMessage.ID
	}
	return st, nil
}

// SetCommands replaces the global command menu (setMyCommands).
func (a *Adapter) SetCommands(ctx context.Context, cmds []kit.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		out = append(out, tele.Command{Text: c.Command, Description: truncateRunes(d, 256)})
		if len(out) >= 100 {
			break
		}
	}
	if err := a.bot.SetCommands(out); err != nil {
		return err
	}
	a.log.Info("menu commands updated", logx.Int("count", len(out)))
	return nil
}

// SendLog implements logx.Sender for the Telegram log sink.
func (a *Adapter) SendLog(ctx context.Context, chatID int64, text string) error {
	_, err := a.SendMessage(ctx, chatID, text, &kit.SendOptions{DisablePreview: true})
	return err
}

func truncateRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
