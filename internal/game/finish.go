package game

import (
	"context"
	"fmt"
	"strings"

	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/archive"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/boardimg"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/rules"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/session"
	"go.uber.org/zap"
)

// finish resolves a terminal game. override is NoResult unless the game ended
// outside the rules (forfeit). Each step runs even when an earlier one failed;
// only the session delete error is returned.
func (m *Manager) finish(ctx context.Context, g *session.Game, b *rules.Board, override rules.Result) error {
	result := override
	method := "forfeit"
	if result == rules.NoResult || result == "" {
		result = b.Outcome()
		method = b.Method()
	}
	if result == rules.NoResult {
		return fmt.Errorf("%w: game %s", ErrOutcomeUndetermined, g.ID)
	}
	key := g.Key()
	now := m.now()

	if g.WhiteUser != g.BlackUser {
		if err := m.records.RecordGame(ctx, g.WhiteUser, g.BlackUser, result); err != nil {
			m.log.Error("record_update_failed", zap.String("game_id", g.ID), zap.Error(err))
		}
	}

	pgn := b.PGN(rules.Headers{
		Event:       m.event,
		Site:        m.site,
		Date:        now,
		White:       g.WhiteUser,
		Black:       g.BlackUser,
		Termination: method,
	}, result)

	var analysisURL string
	if m.uploader != nil {
		u, err := m.uploader.Upload(ctx, pgn)
		if err != nil {
			m.log.Warn("analysis_upload_failed", zap.String("game_id", g.ID), zap.Error(err))
			m.Reply(ctx, key, "analysis.failed", nil)
		} else {
			analysisURL = u
			m.Reply(ctx, key, "analysis.ok", map[string]any{"URL": u})
		}
	}

	if m.archiver != nil {
		err := m.archiver.SaveResult(ctx, archive.Result{
			GameID:      g.ID,
			Channel:     g.Channel,
			Thread:      g.Thread,
			WhiteUser:   g.WhiteUser,
			BlackUser:   g.BlackUser,
			Result:      string(result),
			Method:      method,
			MovesUCI:    g.MovesUCI,
			PGN:         pgn,
			AnalysisURL: analysisURL,
			StartedAt:   g.CreatedAt,
			EndedAt:     now,
		})
		if err != nil {
			m.log.Error("archive_failed", zap.String("game_id", g.ID), zap.Error(err))
		}
	}

	delErr := m.sessions.Delete(ctx, key)
	if delErr != nil {
		m.log.Error("session_delete_failed", zap.String("game_id", g.ID), zap.Error(delErr))
	}

	switch result {
	case rules.WhiteWins:
		m.Reply(ctx, key, "gameover.win", map[string]any{"User": g.WhiteUser, "Color": string(rules.White)})
	case rules.BlackWins:
		m.Reply(ctx, key, "gameover.win", map[string]any{"User": g.BlackUser, "Color": string(rules.Black)})
	default:
		m.Reply(ctx, key, "gameover.draw", nil)
	}
	m.log.Info("game_over",
		zap.String("game_id", g.ID),
		zap.String("result", string(result)),
		zap.String("method", method),
		zap.Int("plies", len(g.MovesUCI)),
	)
	if delErr != nil {
		return fmt.Errorf("delete finished game: %w", delErr)
	}
	return nil
}

// render sends the board image and, while the game is running, whose turn it is.
func (m *Manager) render(ctx context.Context, g *session.Game, b *rules.Board) {
	from, to, hasLast := b.LastMove()
	turn := b.Turn()
	m.send(ctx, g.Key(), m.images.URL(boardimg.Position{
		FEN:         b.FEN(),
		LastFrom:    from,
		LastTo:      to,
		InCheck:     b.InCheck(),
		Orientation: string(turn),
	}))
	if b.IsOver() {
		return
	}
	var sb strings.Builder
	if hasLast {
		sb.WriteString(m.msgs.Text("render.last_move", map[string]any{"From": from, "To": to}))
	}
	sb.WriteString(m.msgs.Text("render.to_play", map[string]any{"User": g.UserFor(turn), "Color": string(turn)}))
	if b.InCheck() {
		sb.WriteString(m.msgs.Text("render.check", nil))
	}
	m.send(ctx, g.Key(), sb.String())
}
