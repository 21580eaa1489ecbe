package logx

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSender struct{ ch chan string }

func (s chanSender) SendLog(_ context.Context, _ int64, text string) error {
	s.ch <- text
	return nil
}

func TestTelegramSinkHonoursMinLevel(t *testing.T) {
	sender := chanSender{ch: make(chan string, 4)}
	svc, log := New(Config{Level: "debug", Telegram: TelegramConfig{Enabled: false, MinLevel: "warn", RatePerSec: 10}}, sender)
	defer svc.Close()
	svc.SetTelegramTarget(-42)
	svc.Apply(Config{Level: "debug", Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10}})

	log.Info("quiet")
	log.With(String("comp", "test")).Warn("loud", Int("n", 3))

	select {
	case got := <-sender.ch:
		assert.True(t, strings.HasPrefix(got, "[WARN] loud"), got)
		assert.Contains(t, got, "- comp=test")
		assert.Contains(t, got, "- n=3")
	case <-time.After(2 * time.Second):
		t.Fatal("warn record not forwarded")
	}
	select {
	case got := <-sender.ch:
		t.Fatalf("unexpected record forwarded: %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFileSinkAndLevelReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alfredo.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}, nil)

	log.Debug("hidden")
	log.Info("shown")
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("now visible")
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(b)
	assert.NotContains(t, body, "hidden")
	assert.Contains(t, body, "shown")
	assert.Contains(t, body, "now visible")
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "x"))
	log.Debug("dropped")
	log.Error("failed", Err(assert.AnError), Duration("dur", time.Second))

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"comp":"x"`)
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, assert.AnError.Error())
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	assert.NotPanics(t, func() { log.Info("nothing") })
	assert.False(t, Nop().IsZero())
}

func TestRenderRecord(t *testing.T) {
	got := renderRecord([]byte(`{"level":"error","time":"x","message":"boom","b":"2","a":1}`))
	assert.Equal(t, "[ERROR] boom\n- a=1\n- b=2", got)
	assert.Equal(t, "not json", renderRecord([]byte("not json\n")))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, parseLevel("warning", LevelInfo))
	assert.Equal(t, LevelDebug, parseLevel(" debug ", LevelInfo))
	assert.Equal(t, LevelInfo, parseLevel("bogus", LevelInfo))
	assert.Equal(t, LevelError, parseLevel("", LevelError))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcdefg...", clip("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", clip("abcdef", 3))
}
