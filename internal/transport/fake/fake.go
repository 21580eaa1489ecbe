// Package fake provides an in-memory transport.Channel for tests.
package fake

import (
	"context"
	"errors"
	"io"
	"sync"

	kit "alfredo/internal/transport"
)

// Op names used with Fail.
const (
	OpPostPoll     = "post_poll"
	OpSendMessage  = "send_message"
	OpSendDocument = "send_document"
	OpStopPoll     = "stop_poll"
	OpPin          = "pin"
	OpUnpin        = "unpin"
	OpChatState    = "chat_state"
	OpSetCommands  = "set_commands"
)

var ErrInjected = errors.New("injected failure")

type Sent struct {
	ChatID  int64
	Text    string
	ReplyTo int
	Options kit.SendOptions
}

type Poll struct {
	ChatID    int64
	MessageID int
	Question  string
	Options   []string
	Anonymous bool
	Stopped   bool
}

type Doc struct {
	ChatID   int64
	FileName string
	Body     []byte
	ReplyTo  int
}

// Channel records every call. Failures are injected per op with Fail.
type Channel struct {
	mu sync.Mutex

	nextID int
	fail   map[string]int // op -> remaining failures, -1 forever

	Sent     []Sent
	Polls    []*Poll
	Docs     []Doc
	Pinned   int
	Pins     []int
	Unpins   []int
	Commands []kit.BotCommand
}

var _ kit.Channel = (*Channel)(nil)

func New() *Channel {
	return &Channel{nextID: 100, fail: map[string]int{}}
}

// Fail makes the next n calls of op fail. n < 0 fails forever, 0 clears.
func (c *Channel) Fail(op string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n == 0 {
		delete(c.fail, op)
		return
	}
	c.fail[op] = n
}

func (c *Channel) check(op string) error {
	n, ok := c.fail[op]
	if !ok {
		return nil
	}
	if n > 0 {
		if n == 1 {
			delete(c.fail, op)
		} else {
			c.fail[op] = n - 1
		}
	}
	return ErrInjected
}

func (c *Channel) id() int {
	c.nextID++
	return c.nextID
}

func (c *Channel) PostPoll(_ context.Context, chatID int64, question string, options []string, anonymous bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(OpPostPoll); err != nil {
		return 0, err
	}
	p := &Poll{ChatID: chatID, MessageID: c.id(), Question: question, Options: append([]string(nil), options...), Anonymous: anonymous}
	c.Polls = append(c.Polls, p)
	return p.MessageID, nil
}

func (c *Channel) SendMessage(_ context.Context, chatID int64, text string, opt *kit.SendOptions) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(OpSendMessage); err != nil {
		return 0, err
	}
	s := Sent{ChatID: chatID, Text: text}
	if opt != nil {
		s.ReplyTo = opt.ReplyTo
		s.Options = *opt
	}
	c.Sent = append(c.Sent, s)
	return c.id(), nil
}

func (c *Channel) SendDocument(_ context.Context, chatID int64, doc kit.Document, opt *kit.SendOptions) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(OpSendDocument); err != nil {
		return 0, err
	}
	body, err := io.ReadAll(doc.Reader)
	if err != nil {
		return 0, err
	}
	d := Doc{ChatID: chatID, FileName: doc.FileName, Body: body}
	if opt != nil {
		d.ReplyTo = opt.ReplyTo
	}
	c.Docs = append(c.Docs, d)
	return c.id(), nil
}

func (c *Channel) StopPoll(_ context.Context, _ int64, messageID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(OpStopPoll); err != nil {
		return err
	}
	for _, p := range c.Polls {
		if p.MessageID == messageID {
			p.Stopped = true
			return nil
		}
	}
	return errors.New("poll not found")
}

func (c *Channel) PinMessage(_ context.Context, _ int64, messageID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(OpPin); err != nil {
		return err
	}
	c.Pinned = messageID
	c.Pins = append(c.Pins, messageID)
	return nil
}

func (c *Channel) UnpinMessage(_ context.Context, _ int64, messageID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(OpUnpin); err != nil {
		return err
	}
	if c.Pinned == messageID {
		c.Pinned = 0
	}
	c.Unpins = append(c.Unpins, messageID)
	return nil
}

func (c *Channel) ChatState(context.Context, int64) (kit.ChatState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(OpChatState); err != nil {
		return kit.ChatState{}, err
	}
	return kit.ChatState{PinnedMessageID: c.Pinned}, nil
}

func (c *Channel) SetCommands(_ context.Context, cmds []kit.BotCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(OpSetCommands); err != nil {
		return err
	}
	c.Commands = append([]kit.BotCommand(nil), cmds...)
	return nil
}

// SetPinned simulates a message pinned by a chat member.
func (c *Channel) SetPinned(messageID int) {
	c.mu.Lock()
	c.Pinned = messageID
	c.mu.Unlock()
}

// PinnedID returns the currently pinned message id.
func (c *Channel) PinnedID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Pinned
}

// Messages returns a copy of all sent texts.
func (c *Channel) Messages() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.Sent...)
}

// Last returns the last sent text, or the zero value.
func (c *Channel) Last() Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Sent) == 0 {
		return Sent{}
	}
	return c.Sent[len(c.Sent)-1]
}

// Poll returns the poll with the given message id, or nil.
func (c *Channel) Poll(messageID int) *Poll {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.Polls {
		if p.MessageID == messageID {
			cp := *p
			return &cp
		}
	}
	return nil
}
