// Package consoleadapter is a line-oriented chat transport over plain
// readers and writers, used by the console CLI and by tests.
package consoleadapter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"votebot/contexts/channel-governance/governance-engine/application/commands"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
	"votebot/contexts/channel-governance/governance-engine/ports"
)

// Dispatcher receives every parsed input line.
type Dispatcher interface {
	Dispatch(ctx context.Context, channel string, msg commands.Message) error
}

// Transport resolves identities from a static account map and writes
// notices and broadcasts to out. Nicks are matched case-insensitively; an
// unmapped nick is its own identity.
type Transport struct {
	accounts map[string]string
	admins   map[string]struct{}
	logger   *slog.Logger

	mu  sync.Mutex
	out io.Writer
}

func NewTransport(out io.Writer, accounts map[string]string, admins []string, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	normalizedAccounts := make(map[string]string, len(accounts))
	for nick, account := range accounts {
		normalizedAccounts[nickKey(nick)] = strings.TrimSpace(account)
	}
	normalizedAdmins := make(map[string]struct{}, len(admins))
	for _, nick := range admins {
		normalizedAdmins[nickKey(nick)] = struct{}{}
	}
	return &Transport{
		accounts: normalizedAccounts,
		admins:   normalizedAdmins,
		logger:   logger,
		out:      out,
	}
}

func (t *Transport) ResolveIdentity(_ context.Context, nick string) (string, bool, error) {
	key := nickKey(nick)
	if key == "" {
		return "", false, nil
	}
	if account, ok := t.accounts[key]; ok {
		return account, account != "", nil
	}
	return strings.TrimSpace(nick), true, nil
}

func (t *Transport) IsTransportAdmin(_ context.Context, nick string) (bool, error) {
	_, ok := t.admins[nickKey(nick)]
	return ok, nil
}

func (t *Transport) NotifyUser(_ context.Context, target string, text string) {
	t.writeLine("-> %s: %s", target, text)
}

func (t *Transport) Broadcast(_ context.Context, channel string, text string) {
	t.writeLine("[%s] %s", channel, text)
}

func (t *Transport) writeLine(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintf(t.out, format+"\n", args...); err != nil {
		t.logger.Warn("console write failed",
			"event", "governance_console_write_failed",
			"module", "channel-governance/governance-engine",
			"layer", "adapter",
			"error", err.Error(),
		)
	}
}

// Serve reads `<channel> <nick> <text...>` lines from in until EOF or ctx
// is done and hands each to dispatcher. Malformed lines and rejected
// commands are logged and skipped.
func (t *Transport) Serve(ctx context.Context, in io.Reader, dispatcher Dispatcher) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			t.handleLine(ctx, line, dispatcher)
		}
	}
}

func (t *Transport) handleLine(ctx context.Context, line string, dispatcher Dispatcher) {
	channel, nick, text, ok := ParseLine(line)
	if !ok {
		if strings.TrimSpace(line) != "" {
			t.logger.Info("console line ignored",
				"event", "governance_console_line_malformed",
				"module", "channel-governance/governance-engine",
				"layer", "adapter",
				"line", line,
			)
		}
		return
	}
	err := dispatcher.Dispatch(ctx, channel, commands.Message{Nick: nick, Text: text})
	if err != nil && !errors.Is(err, domainerrors.ErrInvalidArgument) {
		t.logger.Warn("console dispatch failed",
			"event", "governance_console_dispatch_failed",
			"module", "channel-governance/governance-engine",
			"layer", "adapter",
			"channel", channel,
			"nick", nick,
			"error", err.Error(),
		)
	}
}

// ParseLine splits an input line into channel, nick and the remaining text.
func ParseLine(line string) (channel string, nick string, text string, ok bool) {
	channel, rest := cutField(line)
	nick, rest = cutField(rest)
	text = strings.TrimSpace(rest)
	if channel == "" || nick == "" || text == "" {
		return "", "", "", false
	}
	return channel, nick, text, true
}

func cutField(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	if idx := strings.IndexAny(s, " \t"); idx >= 0 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}

func nickKey(nick string) string {
	return strings.ToLower(strings.TrimSpace(nick))
}

var _ ports.Transport = (*Transport)(nil)
