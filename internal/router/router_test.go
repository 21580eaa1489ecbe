package router

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "alfredo/internal/transport"
	"alfredo/internal/transport/fake"
	logx "alfredo/pkg/logx"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, bot   string
		name, arg string
		ok        bool
	}{
		{in: "/termine", name: "termine", ok: true},
		{in: "  /NewAlfredo 2099-01-01 ", name: "newalfredo", arg: "2099-01-01", ok: true},
		{in: "/announce hallo  welt\nzeile", name: "announce", arg: "hallo  welt\nzeile", ok: true},
		{in: "/help@AlfredoBot", bot: "alfredobot", name: "help", ok: true},
		{in: "/help@otherbot", bot: "alfredobot", ok: false},
		{in: "/help@otherbot", name: "help", ok: true},
		{in: "hello", ok: false},
		{in: "/", ok: false},
	}
	for _, tc := range cases {
		name, arg, ok := parseCommand(tc.in, tc.bot)
		if ok != tc.ok || name != tc.name || arg != tc.arg {
			t.Fatalf("parseCommand(%q): got (%q,%q,%v), want (%q,%q,%v)", tc.in, name, arg, ok, tc.name, tc.arg, tc.ok)
		}
	}
}

type harness struct {
	r      *Router
	ch     *fake.Channel
	in     chan kit.Message
	cancel context.CancelFunc
	done   chan struct{}
	logs   *syncBuffer
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newHarness(t *testing.T, cmds ...Command) *harness {
	t.Helper()
	logs := &syncBuffer{}
	ch := fake.New()
	r := New(logx.NewWriter(logs, "debug"), ch, []int64{1})
	r.SetRegistry(cmds)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{r: r, ch: ch, in: make(chan kit.Message), cancel: cancel, done: make(chan struct{}), logs: logs}
	go func() {
		defer close(h.done)
		_ = r.DispatchLoop(ctx, h.in)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func msg(from int64, text string) kit.Message {
	return kit.Message{ID: 9, ChatID: -5, ChatType: kit.ChatGroup, FromID: from, FromName: "Anna", Text: text}
}

func TestAdminGate(t *testing.T) {
	called := make(chan *Request, 1)
	h := newHarness(t, Command{
		Name:   "newalfredo",
		Access: AccessAdmin,
		Handle: func(ctx context.Context, req *Request) error {
			called <- req
			return nil
		},
	})

	h.in <- msg(2, "/newalfredo 2099-01-01")
	require.Eventually(t, func() bool { return len(h.ch.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	denial := h.ch.Last()
	assert.Equal(t, "❌ Fehler: Du bist kein Admin.", denial.Text)
	assert.Equal(t, 9, denial.ReplyTo)
	assert.Equal(t, "debug", logLevelOf(t, h.logs.String(), "user Anna (2) sent command '/newalfredo 2099-01-01'"))
	assert.Equal(t, "info", logLevelOf(t, h.logs.String(), "sending error reply message to Anna (2)"))
	select {
	case <-called:
		t.Fatal("handler must not run for non-admins")
	default:
	}

	h.in <- msg(1, "/newalfredo 2099-01-01")
	select {
	case req := <-called:
		assert.True(t, req.Admin)
		assert.Equal(t, []string{"2099-01-01"}, req.Args)
		assert.Equal(t, "Anna (1)", req.Sender())
	case <-time.After(time.Second):
		t.Fatal("admin command not dispatched")
	}
	assert.Equal(t, "info", logLevelOf(t, h.logs.String(), "admin Anna (1) sent admin command '/newalfredo 2099-01-01'"))
}

// logLevelOf returns the level of the first JSON record whose message
// starts with prefix.
func logLevelOf(t *testing.T, logs, prefix string) string {
	t.Helper()
	for _, line := range strings.Split(logs, "\n") {
		var rec struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		}
		if json.Unmarshal([]byte(line), &rec) == nil && strings.HasPrefix(rec.Message, prefix) {
			return rec.Level
		}
	}
	t.Fatalf("no record starting with %q in:\n%s", prefix, logs)
	return ""
}

func TestUnknownCommandIgnored(t *testing.T) {
	h := newHarness(t)
	h.in <- msg(1, "/doesnotexist")
	h.in <- msg(1, "plain text")
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.ch.Messages())
}

func TestJobsRunSerially(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	work := func(ctx context.Context) error {
		defer wg.Done()
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}

	h := newHarness(t, Command{Name: "termine", Handle: func(ctx context.Context, req *Request) error { return work(ctx) }})

	wg.Add(10)
	for i := 0; i < 5; i++ {
		require.True(t, h.r.Enqueue("maintenance", work))
		h.in <- msg(3, "/termine")
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestPanickingJobKeepsWorkerAlive(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.r.Enqueue("boom", func(context.Context) error { panic("boom") }))

	done := make(chan struct{})
	require.True(t, h.r.Enqueue("after", func(context.Context) error { close(done); return nil }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
	assert.Contains(t, h.logs.String(), "panic in job")
}

func TestEnqueueAfterStop(t *testing.T) {
	h := newHarness(t)
	h.cancel()
	<-h.done
	assert.False(t, h.r.Enqueue("late", func(context.Context) error { return nil }))
}

func TestIsAdmin(t *testing.T) {
	r := New(logx.Nop(), fake.New(), []int64{1, 2})
	assert.True(t, r.IsAdmin(2))
	assert.False(t, r.IsAdmin(3))
}

func TestPanickingCommandIsLogged(t *testing.T) {
	h := newHarness(t, Command{Name: "termine", Handle: func(context.Context, *Request) error { panic("kaputt") }})
	h.in <- msg(2, "/termine")
	require.Eventually(t, func() bool {
		return strings.Contains(h.logs.String(), "command failed")
	}, time.Second, 5*time.Millisecond)
	logs := h.logs.String()
	assert.Equal(t, 1, strings.Count(logs, "command failed"))
	assert.Contains(t, logs, "command handler panicked")
	assert.Contains(t, logs, "command termine: panic: kaputt")
}

func TestChainOrder(t *testing.T) {
	var trail []string
	layer := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) error {
				trail = append(trail, name)
				return next(ctx, req)
			}
		}
	}
	h := Chain(func(context.Context, *Request) error {
		trail = append(trail, "handler")
		return nil
	}, layer("outer"), layer("inner"), limitCommand(0))

	require.NoError(t, h(context.Background(), &Request{}))
	assert.Equal(t, []string{"outer", "inner", "handler"}, trail)
}
