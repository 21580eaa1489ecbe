// Package router parses inbound commands, gates admin-only commands and
// serializes all work onto a single worker.
package router

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alfredo/internal/safecall"
	kit "alfredo/internal/transport"
	"alfredo/internal/text"
	logx "alfredo/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdmin
)

func (a Access) String() string {
	if a == AccessAdmin {
		return "admin"
	}
	return "everyone"
}

type Command struct {
	Name        string
	Description string
	Usage       string // argument hint, e.g. "<iso-date>"
	Access      Access
	Timeout     time.Duration // optional
	Handle      HandlerFunc
}

type Request struct {
	Message kit.Message
	Command string
	Args    []string
	// RawArgs is the text after the command word, whitespace preserved.
	RawArgs string
	ReqID   string
	Admin   bool
	Logger  logx.Logger
}

// Sender returns the "First (username:id)" rendering of the sender.
func (r *Request) Sender() string {
	return text.FormatUser(r.Message.FromName, r.Message.FromUsername, r.Message.FromID)
}

// Private reports whether the command was sent in a private chat.
func (r *Request) Private() bool { return r.Message.ChatType == kit.ChatPrivate }

type Router struct {
	mu      sync.RWMutex
	cmds    map[string]Command
	admins  []int64
	botName string

	log logx.Logger
	ch  kit.Channel

	runMu sync.Mutex
	jobs  chan job
}

func New(log logx.Logger, ch kit.Channel, admins []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cmds:   map[string]Command{},
		admins: append([]int64(nil), admins...),
		log:    log.With(logx.String("comp", "router")),
		ch:     ch,
		jobs:   make(chan job, 64),
	}
}

// SetBotName makes the router ignore commands addressed to other bots
// (/cmd@otherbot). Empty accepts every suffix.
func (m *Router) SetBotName(name string) {
	m.mu.Lock()
	m.botName = strings.ToLower(strings.TrimPrefix(name, "@"))
	m.mu.Unlock()
}

// IsAdmin is the authorization gate. It keeps no state between calls.
func (m *Router) IsAdmin(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.admins, id)
}

func (m *Router) SetRegistry(cmds []Command) {
	reg := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		reg[name] = c
	}
	m.mu.Lock()
	m.cmds = reg
	m.mu.Unlock()
}

// Route parses msg and, if it is a known command the sender may run, queues it.
func (m *Router) Route(ctx context.Context, msg kit.Message) {
	m.mu.RLock()
	botName := m.botName
	m.mu.RUnlock()

	name, rest, ok := parseCommand(msg.Text, botName)
	if !ok {
		return
	}
	m.mu.RLock()
	cmd, found := m.cmds[name]
	m.mu.RUnlock()
	if !found {
		// The bot lives in a group: other bots' and unknown commands are not ours to answer.
		m.log.Debug("unknown command ignored", logx.String("cmd", name))
		return
	}

	admin := m.IsAdmin(msg.FromID)
	rid := newReqID()
	req := &Request{
		Message: msg,
		Command: name,
		Args:    strings.Fields(rest),
		RawArgs: rest,
		ReqID:   rid,
		Admin:   admin,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", name),
		),
	}

	role := "user"
	if admin {
		role = "admin"
	}
	switch {
	case cmd.Access == AccessAdmin && !admin:
		req.Logger.Debug(role+" "+req.Sender()+" sent command '"+msg.Text+"'", logx.String("access", "denied"))
		ReplyError(ctx, m.ch, req, "Du bist kein Admin.")
		return
	case cmd.Access == AccessAdmin:
		req.Logger.Info(role+" "+req.Sender()+" sent admin command '"+msg.Text+"'", logx.String("access", cmd.Access.String()))
	default:
		req.Logger.Debug(role + " " + req.Sender() + " sent command '" + msg.Text + "'")
	}

	final := Chain(
		cmd.Handle,
		logCommand(),
		recoverCommand(),
		limitCommand(cmd.Timeout),
	)
	if !m.Enqueue("cmd."+name, func(c context.Context) error { return final(c, req) }) {
		ReplyError(ctx, m.ch, req, "Bot ist ausgelastet, bitte später erneut versuchen.")
	}
}

// Reply answers req in its chat via ch. Failures are logged, not returned.
func Reply(ctx context.Context, ch kit.Channel, req *Request, msg string, opt *kit.SendOptions) bool {
	so := kit.SendOptions{}
	if opt != nil {
		so = *opt
	}
	so.ReplyTo = req.Message.ID
	return safecall.Run(ctx, req.Logger, "reply", func(c context.Context) error {
		_, err := ch.SendMessage(c, req.Message.ChatID, msg, &so)
		return err
	})
}

// ReplyError answers with the error prefix.
func ReplyError(ctx context.Context, ch kit.Channel, req *Request, msg string) {
	req.Logger.Info("sending error reply message to " + req.Sender() + ": '" + msg + "'")
	Reply(ctx, ch, req, text.Error(msg), nil)
}

func newReqID() string {
	return uuid.NewString()[:8]
}
