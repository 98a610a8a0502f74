// Package game runs the per-conversation chess session: the claim handshake,
// moves with cooldown, takebacks, forfeits and end-of-game bookkeeping.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/archive"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/boardimg"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/chat"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/claims"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/cooldown"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/records"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/rules"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/session"
	"go.uber.org/zap"
)

// ErrOutcomeUndetermined means game-over handling ran for a game with no result.
// It is a caller bug, never a user error.
var ErrOutcomeUndetermined = errors.New("game over without a determined outcome")

// Uploader publishes a finished game for analysis and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, pgn string) (string, error)
}

// Archiver stores finished games. *archive.Repository satisfies it.
type Archiver interface {
	SaveResult(ctx context.Context, res archive.Result) error
}

// Deps are the collaborators of a Manager. Uploader and Archiver are optional.
type Deps struct {
	Sessions *session.Store
	Claims   *claims.Register
	Records  *records.Engine
	Images   *boardimg.Linker
	Messages *msgcat.Catalog
	Sender   chat.Sender
	Uploader Uploader
	Archiver Archiver
}

// Config tunes a Manager.
type Config struct {
	Cooldown time.Duration
	Event    string // PGN Event tag
	Site     string // PGN Site tag
	Now      func() time.Time
}

type Manager struct {
	sessions *session.Store
	claims   *claims.Register
	records  *records.Engine
	images   *boardimg.Linker
	msgs     *msgcat.Catalog
	out      chat.Sender
	uploader Uploader
	archiver Archiver

	cooldown time.Duration
	event    string
	site     string
	now      func() time.Time
	log      *zap.Logger
}

func NewManager(d Deps, cfg Config) (*Manager, error) {
	if d.Sessions == nil || d.Claims == nil || d.Records == nil || d.Images == nil || d.Messages == nil || d.Sender == nil {
		return nil, fmt.Errorf("game manager: missing dependency")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	event := cfg.Event
	if event == "" {
		event = "Tarrasch casual game"
	}
	return &Manager{
		sessions: d.Sessions,
		claims:   d.Claims,
		records:  d.Records,
		images:   d.Images,
		msgs:     d.Messages,
		out:      d.Sender,
		uploader: d.Uploader,
		archiver: d.Archiver,
		cooldown: cfg.Cooldown,
		event:    event,
		site:     cfg.Site,
		now:      now,
		log:      obslog.L(),
	}, nil
}

// Messages exposes the catalog the manager replies with.
func (m *Manager) Messages() *msgcat.Catalog { return m.msgs }

// Reply sends a catalog message to the conversation. Delivery failures are logged.
func (m *Manager) Reply(ctx context.Context, key session.Key, msgKey string, data map[string]any) {
	m.send(ctx, key, m.msgs.Text(msgKey, data))
}

// Say sends text verbatim.
func (m *Manager) Say(ctx context.Context, key session.Key, text string) { m.send(ctx, key, text) }

func (m *Manager) send(ctx context.Context, key session.Key, text string) {
	if err := m.out.SendMessage(ctx, key.Channel, text, key.Thread); err != nil {
		m.log.Warn("send_failed", zap.String("channel", key.Channel), zap.String("thread", key.Thread), zap.Error(err))
	}
}

// Start opens the claim handshake unless a game is already in progress.
func (m *Manager) Start(ctx context.Context, key session.Key) error {
	g, err := m.sessions.Load(ctx, key)
	switch {
	case err == nil:
		m.Reply(ctx, key, "start.in_progress", map[string]any{"White": g.WhiteUser, "Black": g.BlackUser})
		return nil
	case !errors.Is(err, session.ErrNoSession):
		return err
	}
	if err := m.claims.Open(key.String()); err != nil {
		return err
	}
	m.Reply(ctx, key, "start.prompt", nil)
	return nil
}

// Claim records user as args[0] ("white" or "black"). The second claim creates the game.
func (m *Manager) Claim(ctx context.Context, key session.Key, user string, args []string) error {
	k := key.String()
	if !m.claims.IsOpen(k) {
		m.Reply(ctx, key, "start.needed", nil)
		return nil
	}
	if len(args) == 0 {
		m.Reply(ctx, key, "claim.usage", nil)
		return nil
	}
	color, ok := rules.ParseColor(args[0])
	if !ok {
		m.Reply(ctx, key, "claim.usage", nil)
		return nil
	}
	p, err := m.claims.Claim(k, color, user)
	if errors.Is(err, claims.ErrNotOpen) {
		m.Reply(ctx, key, "start.needed", nil)
		return nil
	}
	if err != nil {
		return err
	}
	m.Reply(ctx, key, "claim.ok", map[string]any{"User": user, "Color": string(color)})
	if !p.Complete() {
		return nil
	}

	g := session.NewGame(key, p.White, p.Black, m.now())
	if err := m.sessions.Save(ctx, g); err != nil {
		m.claims.Restore(k, p)
		return fmt.Errorf("create game: %w", err)
	}
	m.log.Info("game_start",
		zap.String("game_id", g.ID),
		zap.String("key", k),
		zap.String("white", g.WhiteUser),
		zap.String("black", g.BlackUser),
	)
	b, err := g.Board()
	if err != nil {
		return err
	}
	m.render(ctx, g, b)
	return nil
}

// Board re-renders the current position.
func (m *Manager) Board(ctx context.Context, key session.Key) error {
	g, b, err := m.load(ctx, key)
	if err != nil {
		return err
	}
	m.render(ctx, g, b)
	return nil
}

// Move applies args[0] for user. Moves by the player not on turn, and moves
// without notation, are ignored without a reply.
func (m *Manager) Move(ctx context.Context, key session.Key, user string, args []string) error {
	g, b, err := m.load(ctx, key)
	if err != nil {
		return err
	}
	if user != g.UserFor(b.Turn()) {
		return nil
	}
	if len(args) == 0 {
		return nil
	}
	now := m.now()
	if v := cooldown.Check(now, g.LastMoveAt, m.cooldown); !v.Allowed {
		m.Reply(ctx, key, "move.cooldown", map[string]any{"Wait": v.Wait()})
		return nil
	}
	uci, err := b.Push(args[0])
	if errors.Is(err, rules.ErrIllegalMove) {
		m.Reply(ctx, key, "move.illegal", nil)
		return nil
	}
	if err != nil {
		return err
	}
	g.MovesUCI = b.MovesUCI()
	g.LastMoveAt = now
	g.UpdatedAt = now
	if err := m.sessions.Save(ctx, g); err != nil {
		return fmt.Errorf("save move: %w", err)
	}
	m.log.Debug("game_move", zap.String("game_id", g.ID), zap.String("user", user), zap.String("uci", uci))
	m.render(ctx, g, b)
	if b.IsOver() {
		return m.finish(ctx, g, b, rules.NoResult)
	}
	return nil
}

// Takeback reverts the last move. Only the player on turn may ask.
func (m *Manager) Takeback(ctx context.Context, key session.Key, user string) error {
	g, b, err := m.load(ctx, key)
	if err != nil {
		return err
	}
	current := g.UserFor(b.Turn())
	if user != current {
		m.Reply(ctx, key, "takeback.not_your_turn", map[string]any{"User": current})
		return nil
	}
	if err := b.Pop(); err != nil {
		if errors.Is(err, rules.ErrNoMoves) {
			m.Reply(ctx, key, "takeback.empty", nil)
			return nil
		}
		return err
	}
	g.MovesUCI = b.MovesUCI()
	g.UpdatedAt = m.now()
	if err := m.sessions.Save(ctx, g); err != nil {
		return fmt.Errorf("save takeback: %w", err)
	}
	m.log.Debug("game_takeback", zap.String("game_id", g.ID), zap.String("user", user))
	m.render(ctx, g, b)
	return nil
}

// Forfeit ends the game in favour of the side not on turn.
func (m *Manager) Forfeit(ctx context.Context, key session.Key, user string) error {
	g, b, err := m.load(ctx, key)
	if err != nil {
		return err
	}
	result := rules.WhiteWins
	if b.Turn() == rules.White {
		result = rules.BlackWins
	}
	m.log.Info("game_forfeit", zap.String("game_id", g.ID), zap.String("user", user))
	return m.finish(ctx, g, b, result)
}

func (m *Manager) load(ctx context.Context, key session.Key) (*session.Game, *rules.Board, error) {
	g, err := m.sessions.Load(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	b, err := g.Board()
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild game %s: %w", g.ID, err)
	}
	return g, b, nil
}
