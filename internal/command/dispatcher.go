// Package command routes chat messages to game and statistics handlers.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/game"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/records"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/session"
	"go.uber.org/zap"
)

// Message is one inbound chat message with the bot prefix already removed.
type Message struct {
	Channel string
	Thread  string
	User    string
	Text    string
}

// Key is the conversation the message belongs to.
func (m Message) Key() session.Key { return session.Key{Channel: m.Channel, Thread: m.Thread} }

type handler func(ctx context.Context, d *Dispatcher, msg Message, args []string) error

// commands is filled in init because help walks the table itself.
var commands map[string]handler

func init() {
	commands = map[string]handler{
		"start": func(ctx context.Context, d *Dispatcher, msg Message, _ []string) error {
			return d.games.Start(ctx, msg.Key())
		},
		"claim": func(ctx context.Context, d *Dispatcher, msg Message, args []string) error {
			return d.games.Claim(ctx, msg.Key(), msg.User, args)
		},
		"board": func(ctx context.Context, d *Dispatcher, msg Message, _ []string) error {
			return d.games.Board(ctx, msg.Key())
		},
		"move": func(ctx context.Context, d *Dispatcher, msg Message, args []string) error {
			return d.games.Move(ctx, msg.Key(), msg.User, args)
		},
		"takeback": func(ctx context.Context, d *Dispatcher, msg Message, _ []string) error {
			return d.games.Takeback(ctx, msg.Key(), msg.User)
		},
		"forfeit": func(ctx context.Context, d *Dispatcher, msg Message, _ []string) error {
			return d.games.Forfeit(ctx, msg.Key(), msg.User)
		},
		"record":      handleRecord,
		"leaderboard": handleLeaderboard,
		"help":        handleHelp,
	}
}

// Commands lists the command names in order.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Dispatcher struct {
	games *game.Manager
	stats *records.Engine
	msgs  *msgcat.Catalog
	locks *keyLocks
	log   *zap.Logger
}

// NewDispatcher fails when a command has no help text in the catalog.
func NewDispatcher(games *game.Manager, stats *records.Engine) (*Dispatcher, error) {
	if games == nil || stats == nil {
		return nil, errors.New("dispatcher: missing dependency")
	}
	msgs := games.Messages()
	var missing []string
	for _, name := range Commands() {
		if !msgs.Has("help.commands." + name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("dispatcher: no help text for %s", strings.Join(missing, ", "))
	}
	return &Dispatcher{games: games, stats: stats, msgs: msgs, locks: newKeyLocks(), log: obslog.L()}, nil
}

// Handle runs one message to completion. Messages for the same conversation are
// processed one at a time. The returned error is the unexpected failure, already
// logged and answered with the generic reply.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) error {
	words := strings.Fields(msg.Text)
	if len(words) == 0 {
		return nil
	}
	name := strings.ToLower(words[0])
	h, ok := commands[name]
	if !ok {
		return nil
	}
	key := msg.Key()
	unlock := d.locks.lock(key.String())
	defer unlock()

	err := h(ctx, d, msg, words[1:])
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNoSession):
		d.games.Reply(ctx, key, "board.missing", nil)
		return nil
	case errors.Is(err, game.ErrOutcomeUndetermined):
		d.log.DPanic("game_over_undetermined", zap.String("command", name), zap.String("key", key.String()), zap.Error(err))
	default:
		d.log.Error("command_failed", zap.String("command", name), zap.String("key", key.String()), zap.String("user", msg.User), zap.Error(err))
	}
	d.games.Reply(ctx, key, "error.generic", nil)
	return err
}

func handleRecord(ctx context.Context, d *Dispatcher, msg Message, args []string) error {
	player := msg.User
	if len(args) > 0 {
		player = args[0]
	}
	rows, err := d.stats.PlayerRecord(ctx, player)
	if errors.Is(err, records.ErrNoRecord) {
		d.games.Reply(ctx, msg.Key(), "record.none", map[string]any{"User": player})
		return nil
	}
	if err != nil {
		return err
	}
	d.games.Reply(ctx, msg.Key(), "record.table", map[string]any{"User": player, "Table": formatTable("Opponent", rows)})
	return nil
}

func handleLeaderboard(ctx context.Context, d *Dispatcher, msg Message, _ []string) error {
	rows, err := d.stats.Leaderboard(ctx)
	if errors.Is(err, records.ErrNoGames) {
		d.games.Reply(ctx, msg.Key(), "leaderboard.empty", nil)
		return nil
	}
	if err != nil {
		return err
	}
	d.games.Reply(ctx, msg.Key(), "leaderboard.table", map[string]any{"Table": formatTable("Player", rows)})
	return nil
}

func handleHelp(ctx context.Context, d *Dispatcher, msg Message, _ []string) error {
	var b strings.Builder
	b.WriteString(d.msgs.Text("help.header", nil))
	for _, name := range Commands() {
		if name == "help" {
			continue
		}
		b.WriteString(d.msgs.Text("help.line", map[string]any{
			"Command": name,
			"Text":    d.msgs.Text("help.commands."+name, nil),
		}))
	}
	b.WriteString(d.msgs.Text("help.footer", nil))
	d.games.Say(ctx, msg.Key(), b.String())
	return nil
}
