// Package claims collects color claims for games that have been started but not yet paired.
// State is process-local and lost on restart.
package claims

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/rules"
)

var (
	ErrInvalidArgs = errors.New("invalid arguments")
	ErrNotOpen     = errors.New("no pending start for this conversation")
)

// Pending is a snapshot of the claims for one conversation.
type Pending struct {
	White    string
	Black    string
	OpenedAt time.Time
}

// Complete reports whether both colors are claimed.
func (p Pending) Complete() bool { return p.White != "" && p.Black != "" }

// Register maps a conversation key to its pending claims.
type Register struct {
	mu      sync.Mutex
	pending map[string]*Pending
	ttl     time.Duration
	now     func() time.Time
}

// NewRegister returns an empty register. ttl <= 0 disables expiry of abandoned starts.
func NewRegister(ttl time.Duration) *Register {
	return &Register{pending: make(map[string]*Pending), ttl: ttl, now: time.Now}
}

// WithClock overrides the time source.
func (r *Register) WithClock(now func() time.Time) *Register {
	if now != nil {
		r.now = now
	}
	return r
}

// Open starts collecting claims for key, discarding any earlier claims.
func (r *Register) Open(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidArgs
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[key] = &Pending{OpenedAt: r.now()}
	return nil
}

// IsOpen reports whether key is waiting for claims.
func (r *Register) IsOpen(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(strings.TrimSpace(key)) != nil
}

// Claim records user under color, replacing any earlier claim for that color.
// When the claim completes the pairing the entry is removed and the returned
// snapshot has Complete() == true.
func (r *Register) Claim(key string, color rules.Color, user string) (Pending, error) {
	key = strings.TrimSpace(key)
	user = strings.TrimSpace(user)
	if key == "" || user == "" {
		return Pending{}, ErrInvalidArgs
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.lookup(key)
	if p == nil {
		return Pending{}, ErrNotOpen
	}
	switch color {
	case rules.White:
		p.White = user
	case rules.Black:
		p.Black = user
	default:
		return Pending{}, ErrInvalidArgs
	}
	snap := *p
	if snap.Complete() {
		delete(r.pending, key)
	}
	return snap, nil
}

// Restore puts a completed pairing back so the players need not claim again.
// Used when the game could not be persisted.
func (r *Register) Restore(key string, p Pending) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.pending[strings.TrimSpace(key)] = &cp
}

// Len is the number of conversations waiting for claims.
func (r *Register) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k := range r.pending {
		if r.lookup(k) != nil {
			n++
		}
	}
	return n
}

// lookup must be called with mu held. Expired entries are dropped.
func (r *Register) lookup(key string) *Pending {
	p, ok := r.pending[key]
	if !ok {
		return nil
	}
	if r.ttl > 0 && r.now().Sub(p.OpenedAt) > r.ttl {
		delete(r.pending, key)
		return nil
	}
	return p
}
