package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/rules"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNoRecord     = errors.New("player has no recorded games")
	ErrNoGames      = errors.New("no games recorded")
	ErrInvalidArgs  = errors.New("invalid arguments")
	ErrWriteContend = errors.New("record update kept conflicting")
)

const maxWatchRetries = 10

// Outcome is a game result from one player's point of view.
type Outcome string

const (
	Win  Outcome = "win"
	Loss Outcome = "loss"
	Draw Outcome = "draw"
)

// Opposite is the outcome for the other player.
func (o Outcome) Opposite() Outcome {
	switch o {
	case Win:
		return Loss
	case Loss:
		return Win
	default:
		return Draw
	}
}

// Row is one line of a record or leaderboard table.
type Row struct {
	Name   string
	Games  int
	Wins   int
	Losses int
	Draws  int
}

// Engine updates records when games end and builds aggregates.
type Engine struct {
	store *Store
}

func NewEngine(store *Store) *Engine { return &Engine{store: store} }

// RecordResult adds one game against opponent to player's record.
// The read-modify-write runs under WATCH and retries on conflicting writers.
func (e *Engine) RecordResult(ctx context.Context, player, opponent string, outcome Outcome) error {
	player = strings.TrimSpace(player)
	opponent = strings.TrimSpace(opponent)
	if player == "" || opponent == "" {
		return ErrInvalidArgs
	}
	switch outcome {
	case Win, Loss, Draw:
	default:
		return fmt.Errorf("%w: outcome %q", ErrInvalidArgs, outcome)
	}

	key := e.store.keyRecord(player)
	update := func(tx *redis.Tx) error {
		rec, err := getRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = Record{}
		}
		t := rec[opponent]
		switch outcome {
		case Win:
			t.Win++
		case Loss:
			t.Loss++
		case Draw:
			t.Draw++
		}
		rec[opponent] = t
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := e.store.rdb.Watch(ctx, update, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("update record %s: %w", player, err)
	}
	return fmt.Errorf("%w: %s", ErrWriteContend, player)
}

// RecordGame commits a finished game between two distinct players: complementary
// record updates for both and roster membership. Both updates are attempted even if one fails.
func (e *Engine) RecordGame(ctx context.Context, white, black string, result rules.Result) error {
	if strings.TrimSpace(white) == strings.TrimSpace(black) {
		return nil
	}
	var whiteOutcome Outcome
	switch result {
	case rules.WhiteWins:
		whiteOutcome = Win
	case rules.BlackWins:
		whiteOutcome = Loss
	case rules.Draw:
		whiteOutcome = Draw
	default:
		return fmt.Errorf("%w: result %q", ErrInvalidArgs, result)
	}

	var errs []error
	if err := e.RecordResult(ctx, white, black, whiteOutcome); err != nil {
		errs = append(errs, err)
	}
	if err := e.RecordResult(ctx, black, white, whiteOutcome.Opposite()); err != nil {
		errs = append(errs, err)
	}
	if err := e.store.AddPlayers(ctx, white, black); err != nil {
		errs = append(errs, fmt.Errorf("add players: %w", err))
	}
	if len(errs) == 0 {
		obslog.L().Info("record_game",
			zap.String("white", white),
			zap.String("black", black),
			zap.String("result", string(result)),
		)
	}
	return errors.Join(errs...)
}

// Leaderboard sums every rostered player's record, ordered by wins.
// Players on the roster without a record are skipped.
func (e *Engine) Leaderboard(ctx context.Context) ([]Row, error) {
	n, err := e.store.PlayerCount(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoGames
	}
	players, err := e.store.Players(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(players))
	for _, p := range players {
		rec, err := e.store.Get(ctx, p)
		if err != nil {
			obslog.L().Warn("leaderboard_record_error", zap.String("player", p), zap.Error(err))
			continue
		}
		if len(rec) == 0 {
			continue
		}
		row := Row{Name: p}
		for _, t := range rec {
			row.Wins += t.Win
			row.Losses += t.Loss
			row.Draws += t.Draw
		}
		row.Games = row.Wins + row.Losses + row.Draws
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Wins != rows[j].Wins {
			return rows[i].Wins > rows[j].Wins
		}
		if rows[i].Games != rows[j].Games {
			return rows[i].Games > rows[j].Games
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}

// PlayerRecord breaks a player's record down by opponent, most played first.
func (e *Engine) PlayerRecord(ctx context.Context, player string) ([]Row, error) {
	rec, err := e.store.Get(ctx, player)
	if err != nil {
		return nil, err
	}
	if len(rec) == 0 {
		return nil, ErrNoRecord
	}
	rows := make([]Row, 0, len(rec))
	for opp, t := range rec {
		rows = append(rows, Row{Name: opp, Games: t.Games(), Wins: t.Win, Losses: t.Loss, Draws: t.Draw})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Games != rows[j].Games {
			return rows[i].Games > rows[j].Games
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}
