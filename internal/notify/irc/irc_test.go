package irc

import (
	"context"
	"strings"
	"testing"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/soyeahso/supportim/internal/notify"
	"github.com/stretchr/testify/assert"
)

func testNotifier(cfg config.IRCConfig) *Notifier {
	return New(cfg, logging.New(nil, "silent"))
}

func TestStatusBeforeStart(t *testing.T) {
	n := testNotifier(config.IRCConfig{Server: "irc.example.net", Nick: "imbot"})
	st := n.Status()
	assert.Equal(t, "irc", st.Name)
	assert.False(t, st.Connected)
	assert.False(t, st.Running)
}

func TestNotifyWhenDisconnected(t *testing.T) {
	n := testNotifier(config.IRCConfig{Channels: []string{"#support"}})
	err := n.Notify(context.Background(), notify.Alert{Phone: "+1", Content: "hi"})
	assert.ErrorIs(t, err, errNotConnected)
}

func TestClientConfig(t *testing.T) {
	n := testNotifier(config.IRCConfig{Server: "irc.example.net", Nick: "imbot", UseTLS: true, SASL: true, Password: "pw"})
	cfg := n.clientConfig()
	assert.Equal(t, 6697, cfg.Port)
	assert.True(t, cfg.SSL)
	assert.NotNil(t, cfg.SASL)
	assert.Empty(t, cfg.ServerPass)

	n = testNotifier(config.IRCConfig{Server: "irc.example.net", Nick: "imbot", Password: "pw"})
	cfg = n.clientConfig()
	assert.Equal(t, 6667, cfg.Port)
	assert.Nil(t, cfg.SASL)
	assert.Equal(t, "pw", cfg.ServerPass)
}

func TestFormatAlert(t *testing.T) {
	assert.Equal(t, "[+111] Ann (Peru): hello",
		formatAlert(notify.Alert{Phone: "+111", Name: "Ann", Country: "Peru", Content: "hello"}))
	assert.Equal(t, "[+111]: <image> /uploads/x.png",
		formatAlert(notify.Alert{Phone: "+111", Type: "image", Content: "/uploads/x.png"}))
}

func TestParseReply(t *testing.T) {
	phone, text, ok := parseReply("!reply +111 we are on it ")
	assert.True(t, ok)
	assert.Equal(t, "+111", phone)
	assert.Equal(t, "we are on it", text)

	for _, line := range []string{"hello", "!reply", "!reply +111", "!reply +111   ", "!replyx +1 a"} {
		_, _, ok := parseReply(line)
		assert.False(t, ok, line)
	}
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitMessage("a\r\n\nb", 10))
	assert.Equal(t, []string{"abcd", "ef"}, splitMessage("abcdef", 4))

	// Multi-byte runes are never split.
	parts := splitMessage(strings.Repeat("你", 5), 4)
	for _, p := range parts {
		assert.True(t, len(p)%3 == 0, p)
	}
	assert.Equal(t, strings.Repeat("你", 5), strings.Join(parts, ""))
}

func TestRelayChannelMatch(t *testing.T) {
	n := testNotifier(config.IRCConfig{Channels: []string{"#Support"}})
	assert.True(t, n.isRelayChannel("#support"))
	assert.False(t, n.isRelayChannel("#random"))
}
