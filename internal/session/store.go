package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/rules"
	"github.com/redis/go-redis/v9"
)

// ErrNoSession means no game is in progress for the key.
var ErrNoSession = errors.New("no game in progress")

const keyPrefix = "tarrasch:board:"

// Key identifies a conversation context. Thread may be empty.
type Key struct {
	Channel string
	Thread  string
}

func (k Key) String() string {
	return strings.TrimSpace(k.Channel) + ":" + strings.TrimSpace(k.Thread)
}

// Game is the persisted state of one match.
type Game struct {
	ID         string    `json:"id"`
	Channel    string    `json:"channel"`
	Thread     string    `json:"thread,omitempty"`
	WhiteUser  string    `json:"white_user"`
	BlackUser  string    `json:"black_user"`
	MovesUCI   []string  `json:"moves_uci"`
	LastMoveAt time.Time `json:"last_move_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewGame starts a match with white to move at the given time.
func NewGame(key Key, white, black string, now time.Time) *Game {
	return &Game{
		ID:         uuid.NewString(),
		Channel:    key.Channel,
		Thread:     key.Thread,
		WhiteUser:  strings.TrimSpace(white),
		BlackUser:  strings.TrimSpace(black),
		MovesUCI:   []string{},
		LastMoveAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (g *Game) Key() Key { return Key{Channel: g.Channel, Thread: g.Thread} }

// Board rebuilds the rules state from the move history.
func (g *Game) Board() (*rules.Board, error) { return rules.FromMoves(g.MovesUCI) }

// UserFor returns the player of the given color.
func (g *Game) UserFor(c rules.Color) string {
	if c == rules.White {
		return g.WhiteUser
	}
	return g.BlackUser
}

// Store persists games in Redis as JSON, one value per key.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore returns a store. ttl <= 0 keeps games until they finish.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl < 0 {
		ttl = 0
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) keyGame(k Key) string { return keyPrefix + k.String() }

// Load returns ErrNoSession when no game is stored for k.
func (s *Store) Load(ctx context.Context, k Key) (*Game, error) {
	raw, err := s.rdb.Get(ctx, s.keyGame(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", k, err)
	}
	var g Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", k, err)
	}
	return &g, nil
}

// Exists reports whether a game is stored for k.
func (s *Store) Exists(ctx context.Context, k Key) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.keyGame(k)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Save(ctx context.Context, g *Game) error {
	if g == nil {
		return fmt.Errorf("cannot save nil game")
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyGame(g.Key()), raw, s.ttl).Err()
}

func (s *Store) Delete(ctx context.Context, k Key) error {
	return s.rdb.Del(ctx, s.keyGame(k)).Err()
}
