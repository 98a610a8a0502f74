package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	recordPrefix = "tarrasch:record:"
	playersKey   = "tarrasch:players"
)

// Tally is one player's results against one opponent.
type Tally struct {
	Win  int `json:"win"`
	Loss int `json:"loss"`
	Draw int `json:"draw"`
}

// Games is the number of games in the tally.
func (t Tally) Games() int { return t.Win + t.Loss + t.Draw }

// Record maps opponent to tally.
type Record map[string]Tally

// Store is the Redis adapter for player records and the player roster.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) keyRecord(player string) string { return recordPrefix + strings.TrimSpace(player) }

// Get returns the player's record, or nil when the player has none.
func (s *Store) Get(ctx context.Context, player string) (Record, error) {
	return getRecord(ctx, s.rdb, s.keyRecord(player))
}

func (s *Store) AddPlayers(ctx context.Context, players ...string) error {
	members := make([]any, 0, len(players))
	for _, p := range players {
		if p = strings.TrimSpace(p); p != "" {
			members = append(members, p)
		}
	}
	if len(members) == 0 {
		return nil
	}
	return s.rdb.SAdd(ctx, playersKey, members...).Err()
}

func (s *Store) Players(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, playersKey).Result()
}

func (s *Store) IsPlayer(ctx context.Context, player string) (bool, error) {
	return s.rdb.SIsMember(ctx, playersKey, strings.TrimSpace(player)).Result()
}

func (s *Store) PlayerCount(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, playersKey).Result()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getRecord(ctx context.Context, g getter, key string) (Record, error) {
	raw, err := g.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := Record{}
	if len(raw) == 0 {
		return rec, nil
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}
	return rec, nil
}
