// Package transport defines the chat-platform boundary used by the bot.
package transport

import (
	"context"
	"io"
)

// Chat types reported by the platform.
const (
	ChatPrivate = "private"
	ChatGroup   = "group"
	ChatSuper   = "supergroup"
)

// Message is an inbound command message.
type Message struct {
	ID           int
	ChatID       int64
	ChatType     string
	FromID       int64
	FromName     string
	FromUsername string
	Text         string
}

// SendOptions tweak an outbound text message.
type SendOptions struct {
	ReplyTo        int // message id in the target chat; 0 for none
	ParseMode      string
	DisablePreview bool
}

// ChatState is the subset of chat information the bot acts on.
type ChatState struct {
	// PinnedMessageID is the most recently pinned message, 0 if none.
	PinnedMessageID int
}

// Document is a file sent as attachment.
type Document struct {
	FileName string
	MIME     string
	Caption  string
	Reader   io.Reader
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// Channel is the outbound side of the chat platform.
type Channel interface {
	PostPoll(ctx context.Context, chatID int64, question string, options []string, anonymous bool) (int, error)
	SendMessage(ctx context.Context, chatID int64, text string, opt *SendOptions) (int, error)
	SendDocument(ctx context.Context, chatID int64, doc Document, opt *SendOptions) (int, error)
	StopPoll(ctx context.Context, chatID int64, messageID int) error
	PinMessage(ctx context.Context, chatID int64, messageID int) error
	UnpinMessage(ctx context.Context, chatID int64, messageID int) error
	ChatState(ctx context.Context, chatID int64) (ChatState, error)
	SetCommands(ctx context.Context, cmds []BotCommand) error
}

// Source delivers inbound messages until ctx is done or Stop is called.
type Source interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
}
