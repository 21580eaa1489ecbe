package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender delivers a rendered log record to a chat.
// The telegram adapter implements it.
type Sender interface {
	SendLog(ctx context.Context, chatID int64, text string) error
}

const (
	chatQueueSize   = 256
	chatRecordLimit = 3500
	chatValueLimit  = 600
	chatSendTimeout = 10 * time.Second
)

// chatSink forwards records at or above minLevel to a chat. Writes never
// block: a full queue or an exhausted limiter drops the record.
type chatSink struct {
	mu       sync.Mutex
	sender   Sender
	chatID   int64
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue  chan string
	start  sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func newChatSink(sender Sender) *chatSink {
	return &chatSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
		queue:    make(chan string, chatQueueSize),
	}
}

func (c *chatSink) setSender(s Sender) {
	c.mu.Lock()
	c.sender = s
	c.mu.Unlock()
}

func (c *chatSink) setTarget(chatID int64) {
	c.mu.Lock()
	c.chatID = chatID
	c.mu.Unlock()
}

func (c *chatSink) configure(cfg TelegramConfig) {
	rps := max(cfg.RatePerSec, 1)

	c.mu.Lock()
	c.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	c.mu.Unlock()

	if !cfg.Enabled {
		return
	}
	c.start.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		c.mu.Lock()
		c.cancel, c.done = cancel, done
		c.mu.Unlock()
		go c.forward(ctx, done)
	})
}

func (c *chatSink) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *chatSink) forward(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-c.queue:
			c.mu.Lock()
			sender, chatID := c.sender, c.chatID
			c.mu.Unlock()
			if sender == nil || chatID == 0 {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, chatSendTimeout)
			_ = sender.SendLog(sctx, chatID, text)
			cancel()
		}
	}
}

func (c *chatSink) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.NoLevel, p)
}

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	chatID, minLevel, lim := c.chatID, c.minLevel, c.limiter
	c.mu.Unlock()

	if chatID == 0 || level < minLevel || level == zerolog.NoLevel || !lim.Allow() {
		return len(p), nil
	}
	if text := renderRecord(p); text != "" {
		select {
		case c.queue <- text:
		default:
		}
	}
	return len(p), nil
}

// renderRecord turns one JSON record into "[LEVEL] message" followed by
// one "- key=value" line per remaining field, keys sorted.
func renderRecord(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var rec map[string]any
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return clip(raw, chatRecordLimit)
	}

	var b strings.Builder
	if lvl, _ := rec[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := rec[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(rec))
	for k := range rec {
		switch k {
		case zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(rec[k]), chatValueLimit))
	}
	return clip(b.String(), chatRecordLimit)
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
