// Package archive keeps a Postgres history of finished games. It is optional:
// a nil *Repository accepts every call and does nothing.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS tarrasch_games (
	game_id     TEXT PRIMARY KEY,
	channel     TEXT NOT NULL,
	thread      TEXT NOT NULL DEFAULT '',
	white_user  TEXT NOT NULL,
	black_user  TEXT NOT NULL,
	result      TEXT NOT NULL,
	method      TEXT NOT NULL DEFAULT '',
	moves_uci   JSONB NOT NULL,
	pgn         TEXT NOT NULL,
	analysis_url TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL
)`

// Result is a finished game as archived.
type Result struct {
	GameID      string
	Channel     string
	Thread      string
	WhiteUser   string
	BlackUser   string
	Result      string // PGN result token
	Method      string
	MovesUCI    []string
	PGN         string
	AnalysisURL string
	StartedAt   time.Time
	EndedAt     time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

// EnsureSchema creates the games table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a finished game.
func (r *Repository) SaveResult(ctx context.Context, res Result) error {
	if r == nil || r.db == nil {
		return nil
	}
	if strings.TrimSpace(res.GameID) == "" {
		return fmt.Errorf("archive: empty game id")
	}
	movesRaw, err := movesJSON(res.MovesUCI)
	if err != nil {
		return err
	}

	q := `INSERT INTO tarrasch_games (
        game_id, channel, thread, white_user, black_user,
        result, method, moves_uci, pgn, analysis_url,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
      ) ON CONFLICT (game_id) DO UPDATE SET
        result=EXCLUDED.result,
        method=EXCLUDED.method,
        moves_uci=EXCLUDED.moves_uci,
        pgn=EXCLUDED.pgn,
        analysis_url=EXCLUDED.analysis_url,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		res.GameID,
		res.Channel, res.Thread,
		res.WhiteUser, res.BlackUser,
		res.Result, strings.ToLower(strings.TrimSpace(res.Method)),
		movesRaw, res.PGN, res.AnalysisURL,
		res.StartedAt, res.EndedAt, durationMillis(res.StartedAt, res.EndedAt),
	)
	return err
}

func movesJSON(moves []string) (string, error) {
	if moves == nil {
		moves = []string{}
	}
	raw, err := json.Marshal(moves)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func durationMillis(start, end time.Time) int64 {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	d := end.Sub(start).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}
