// Package irc relays customer alerts to IRC channels and accepts agent
// replies written as "!reply <phone> <text>".
package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lrstanley/girc"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/soyeahso/supportim/internal/notify"
	"github.com/soyeahso/supportim/internal/version"
)

const (
	replyCommand = "!reply"
	maxLineBytes = 400
)

var errNotConnected = errors.New("irc: not connected")

// Notifier implements notify.Notifier over IRC.
type Notifier struct {
	cfg config.IRCConfig
	log *logging.Logger

	mu      sync.RWMutex
	client  *girc.Client
	onReply func(notify.Reply)
	running bool
	lastErr string
}

// New creates an IRC notifier.
func New(cfg config.IRCConfig, log *logging.Logger) *Notifier {
	return &Notifier{cfg: cfg, log: log.Sub("irc")}
}

// Name implements notify.Notifier.
func (n *Notifier) Name() string { return "irc" }

// OnReply implements notify.Notifier.
func (n *Notifier) OnReply(fn func(notify.Reply)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onReply = fn
}

// Status implements notify.Notifier.
func (n *Notifier) Status() notify.Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return notify.Status{
		Name:      n.Name(),
		Connected: n.client != nil && n.client.IsConnected(),
		Running:   n.running,
		LastError: n.lastErr,
	}
}

func (n *Notifier) clientConfig() girc.Config {
	port := n.cfg.Port
	if port == 0 {
		port = 6667
		if n.cfg.UseTLS {
			port = 6697
		}
	}
	cfg := girc.Config{
		Server:  n.cfg.Server,
		Port:    port,
		Nick:    n.cfg.Nick,
		User:    n.cfg.Nick,
		Name:    "supportim relay",
		SSL:     n.cfg.UseTLS,
		Version: "supportim/" + version.Version,
	}
	if n.cfg.UseTLS {
		cfg.TLSConfig = &tls.Config{ServerName: n.cfg.Server}
	}
	switch {
	case n.cfg.SASL && n.cfg.Password != "":
		cfg.SASL = &girc.SASLPlain{User: n.cfg.Nick, Pass: n.cfg.Password}
	case n.cfg.Password != "":
		cfg.ServerPass = n.cfg.Password
	}
	return cfg
}

// Start implements notify.Notifier. It blocks until the connection ends or
// ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) error {
	client := girc.New(n.clientConfig())
	client.Handlers.Add(girc.CONNECTED, n.onConnected)
	client.Handlers.Add(girc.PRIVMSG, n.onPrivmsg)
	client.Handlers.Add(girc.DISCONNECTED, n.onDisconnected)

	n.mu.Lock()
	n.client = client
	n.running = true
	n.lastErr = ""
	n.mu.Unlock()

	n.log.Info().Str("server", n.cfg.Server).Str("nick", n.cfg.Nick).
		Strs("channels", n.cfg.Channels).Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() { errCh <- client.Connect() }()

	select {
	case err := <-errCh:
		n.mu.Lock()
		n.running = false
		if err != nil {
			n.lastErr = err.Error()
		}
		n.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
		return ctx.Err()
	}
}

// Stop implements notify.Notifier.
func (n *Notifier) Stop(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client != nil && n.client.IsConnected() {
		n.client.Quit("supportim shutting down")
	}
	n.running = false
	return nil
}

// Notify implements notify.Notifier by posting the alert to every configured channel.
func (n *Notifier) Notify(_ context.Context, a notify.Alert) error {
	n.mu.RLock()
	client := n.client
	n.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return errNotConnected
	}

	lines := splitMessage(formatAlert(a), maxLineBytes)
	for _, ch := range n.cfg.Channels {
		for _, line := range lines {
			client.Cmd.Message(ch, line)
		}
	}
	n.log.Debug().Str("phone", a.Phone).Int("lines", len(lines)).Msg("alert relayed")
	return nil
}

func (n *Notifier) onConnected(c *girc.Client, _ girc.Event) {
	n.log.Info().Str("nick", c.GetNick()).Msg("connected to IRC")
	for _, ch := range n.cfg.Channels {
		c.Cmd.Join(ch)
	}
}

func (n *Notifier) onDisconnected(_ *girc.Client, _ girc.Event) {
	n.log.Warn().Msg("disconnected from IRC")
	n.mu.Lock()
	n.running = false
	n.mu.Unlock()
}

func (n *Notifier) onPrivmsg(c *girc.Client, e girc.Event) {
	if e.Source == nil || e.Source.Name == c.GetNick() || len(e.Params) == 0 {
		return
	}
	// Only replies posted in a relay channel are accepted.
	if !girc.IsValidChannel(e.Params[0]) || !n.isRelayChannel(e.Params[0]) {
		return
	}
	phone, text, ok := parseReply(e.Last())
	if !ok {
		return
	}

	n.mu.RLock()
	fn := n.onReply
	n.mu.RUnlock()
	if fn == nil {
		return
	}
	n.log.Info().Str("phone", phone).Str("from", e.Source.Name).Msg("agent reply from IRC")
	fn(notify.Reply{Phone: phone, Content: text, From: e.Source.Name})
}

func (n *Notifier) isRelayChannel(name string) bool {
	for _, ch := range n.cfg.Channels {
		if strings.EqualFold(ch, name) {
			return true
		}
	}
	return false
}

// formatAlert renders an alert as "[phone] name (country): content".
func formatAlert(a notify.Alert) string {
	var b strings.Builder
	b.WriteString("[" + a.Phone + "]")
	if a.Name != "" {
		b.WriteString(" " + a.Name)
	}
	if a.Country != "" {
		b.WriteString(" (" + a.Country + ")")
	}
	b.WriteString(": ")
	if a.Type != "" && a.Type != "text" {
		b.WriteString("<" + a.Type + "> ")
	}
	b.WriteString(a.Content)
	return b.String()
}

// parseReply extracts the phone and text from "!reply <phone> <text>".
func parseReply(line string) (phone, text string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(line), replyCommand+" ")
	if !found {
		return "", "", false
	}
	phone, text, found = strings.Cut(strings.TrimSpace(rest), " ")
	text = strings.TrimSpace(text)
	if !found || phone == "" || text == "" {
		return "", "", false
	}
	return phone, text, true
}

// splitMessage breaks text into IRC-sized lines. PRIVMSG cannot carry
// newlines, so each input line becomes at least one output line. Long lines
// are cut on rune boundaries.
func splitMessage(text string, maxLen int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		for len(line) > maxLen {
			cut := maxLen
			for cut > 0 && !isRuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			out = append(out, line[:cut])
			line = line[cut:]
		}
		out = append(out, line)
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
