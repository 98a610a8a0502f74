package game

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/archive"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/boardimg"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/claims"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/records"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/rules"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

type mockSender struct{ mock.Mock }

func (s *mockSender) SendMessage(ctx context.Context, channel, text, thread string) error {
	args := s.Called(ctx, channel, text, thread)
	return args.Error(0)
}

// texts returns the message bodies sent since call index from.
func (s *mockSender) texts(from int) []string {
	var out []string
	for _, c := range s.Calls[from:] {
		out = append(out, c.Arguments.String(2))
	}
	return out
}

type mockUploader struct{ mock.Mock }

func (u *mockUploader) Upload(ctx context.Context, pgn string) (string, error) {
	args := u.Called(ctx, pgn)
	return args.String(0), args.Error(1)
}

type mockArchiver struct{ mock.Mock }

func (a *mockArchiver) SaveResult(ctx context.Context, res archive.Result) error {
	return a.Called(ctx, res).Error(0)
}

type harness struct {
	m        *Manager
	sender   *mockSender
	uploader *mockUploader
	archiver *mockArchiver
	sessions *session.Store
	recs     *records.Store
	claims   *claims.Register
	now      time.Time
}

var testKey = session.Key{Channel: "C1", Thread: "T1"}

func newHarness(t *testing.T, cd time.Duration) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	msgs, err := msgcat.New("", "tarrasch")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	linker, err := boardimg.NewLinker("http://img.test/board.png")
	if err != nil {
		t.Fatalf("linker: %v", err)
	}
	h := &harness{
		sender:   &mockSender{},
		uploader: &mockUploader{},
		archiver: &mockArchiver{},
		sessions: session.NewStore(rdb, 0),
		recs:     records.NewStore(rdb),
		claims:   claims.NewRegister(0),
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.sender.On("SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.m, err = NewManager(Deps{
		Sessions: h.sessions,
		Claims:   h.claims,
		Records:  records.NewEngine(h.recs),
		Images:   linker,
		Messages: msgs,
		Sender:   h.sender,
		Uploader: h.uploader,
		Archiver: h.archiver,
	}, Config{Cooldown: cd, Now: func() time.Time { return h.now }})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return h
}

func (h *harness) sent() int { return len(h.sender.Calls) }

// pair runs start, claim white, claim black.
func (h *harness) pair(t *testing.T, white, black string) {
	t.Helper()
	ctx := context.Background()
	if err := h.m.Start(ctx, testKey); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.m.Claim(ctx, testKey, white, []string{"white"}); err != nil {
		t.Fatalf("Claim white: %v", err)
	}
	if err := h.m.Claim(ctx, testKey, black, []string{"BLACK"}); err != nil {
		t.Fatalf("Claim black: %v", err)
	}
}

func (h *harness) play(t *testing.T, moves ...string) {
	t.Helper()
	for _, mv := range moves {
		g, err := h.sessions.Load(context.Background(), testKey)
		if err != nil {
			t.Fatalf("load before move %s: %v", mv, err)
		}
		b, err := g.Board()
		if err != nil {
			t.Fatalf("board before move %s: %v", mv, err)
		}
		user := g.UserFor(b.Turn())
		if err := h.m.Move(context.Background(), testKey, user, []string{mv}); err != nil {
			t.Fatalf("Move %s: %v", mv, err)
		}
	}
}

func contains(texts []string, want string) bool {
	for _, s := range texts {
		if s == want {
			return true
		}
	}
	return false
}

func TestStartAndClaimCreatesOneGame(t *testing.T) {
	h := newHarness(t, 0)
	h.pair(t, "alice", "bob")

	g, err := h.sessions.Load(context.Background(), testKey)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.WhiteUser != "alice" || g.BlackUser != "bob" || len(g.MovesUCI) != 0 {
		t.Fatalf("game = %+v", g)
	}
	if !g.LastMoveAt.Equal(h.now) {
		t.Fatalf("last move at = %v", g.LastMoveAt)
	}
	if h.claims.Len() != 0 || h.claims.IsOpen(testKey.String()) {
		t.Fatalf("claim entry left behind")
	}
	texts := h.sender.texts(0)
	for _, want := range []string{
		"Let's play chess! I need two players to say `tarrasch claim white` or `tarrasch claim black`.",
		"*alice* will play as white.",
		"*bob* will play as black.",
		"*alice* (white) to play.",
	} {
		if !contains(texts, want) {
			t.Fatalf("missing %q in %q", want, texts)
		}
	}
	if !strings.HasPrefix(texts[len(texts)-2], "http://img.test/board.png?") {
		t.Fatalf("board image not rendered: %q", texts)
	}
}

func TestSecondStartReportsExistingPlayers(t *testing.T) {
	h := newHarness(t, 0)
	h.pair(t, "alice", "bob")
	before, _ := h.sessions.Load(context.Background(), testKey)
	n := h.sent()
	if err := h.m.Start(context.Background(), testKey); err != nil {
		t.Fatalf("Start: %v", err)
	}
	texts := h.sender.texts(n)
	if len(texts) != 1 || texts[0] != "A game is already going on in this channel between alice and bob" {
		t.Fatalf("texts = %q", texts)
	}
	after, _ := h.sessions.Load(context.Background(), testKey)
	if after.ID != before.ID || h.claims.IsOpen(testKey.String()) {
		t.Fatalf("second start changed state")
	}
}

func TestClaimWithoutStart(t *testing.T) {
	h := newHarness(t, 0)
	if err := h.m.Claim(context.Background(), testKey, "alice", []string{"white"}); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if texts := h.sender.texts(0); len(texts) != 1 || texts[0] != "Say `tarrasch start` to start a new game." {
		t.Fatalf("texts = %q", texts)
	}
}

func TestClaimBadColorReprompts(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	_ = h.m.Start(ctx, testKey)
	n := h.sent()
	for _, args := range [][]string{nil, {"purple"}} {
		if err := h.m.Claim(ctx, testKey, "alice", args); err != nil {
			t.Fatalf("Claim: %v", err)
		}
	}
	want := "Say `tarrasch claim white` or `tarrasch claim black` to pick your side."
	texts := h.sender.texts(n)
	if len(texts) != 2 || texts[0] != want || texts[1] != want {
		t.Fatalf("texts = %q", texts)
	}
	if !h.claims.IsOpen(testKey.String()) {
		t.Fatalf("handshake should still be open")
	}
}

func TestMoveByPlayerNotOnTurnIsSilent(t *testing.T) {
	h := newHarness(t, 0)
	h.pair(t, "alice", "bob")
	n := h.sent()
	ctx := context.Background()
	if err := h.m.Move(ctx, testKey, "bob", []string{"e4"}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if err := h.m.Move(ctx, testKey, "mallory", []string{"e4"}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if err := h.m.Move(ctx, testKey, "alice", nil); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if h.sent() != n {
		t.Fatalf("unexpected replies: %q", h.sender.texts(n))
	}
	g, _ := h.sessions.Load(ctx, testKey)
	if len(g.MovesUCI) != 0 {
		t.Fatalf("moves = %v", g.MovesUCI)
	}
}

func TestMoveCooldownBoundary(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.pair(t, "alice", "bob")
	start := h.now
	ctx := context.Background()

	h.now = start.Add(59 * time.Second)
	n := h.sent()
	if err := h.m.Move(ctx, testKey, "alice", []string{"e4"}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if texts := h.sender.texts(n); len(texts) != 1 || texts[0] != "You must wait 1 seconds to make a move." {
		t.Fatalf("texts = %q", texts)
	}
	g, _ := h.sessions.Load(ctx, testKey)
	if len(g.MovesUCI) != 0 {
		t.Fatalf("rejected move was applied")
	}

	h.now = start.Add(time.Minute)
	if err := h.m.Move(ctx, testKey, "alice", []string{"e4"}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	g, _ = h.sessions.Load(ctx, testKey)
	if len(g.MovesUCI) != 1 || g.MovesUCI[0] != "e2e4" || !g.LastMoveAt.Equal(h.now) {
		t.Fatalf("game = %+v", g)
	}
}

func TestIllegalMove(t *testing.T) {
	h := newHarness(t, 0)
	h.pair(t, "alice", "bob")
	n := h.sent()
	if err := h.m.Move(context.Background(), testKey, "alice", []string{"e5"}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if texts := h.sender.texts(n); len(texts) != 1 || texts[0] != "This move is illegal." {
		t.Fatalf("texts = %q", texts)
	}
}

func TestMoveRendersLastMoveAndCheck(t *testing.T) {
	h := newHarness(t, 0)
	h.pair(t, "alice", "bob")
	n := h.sent()
	h.play(t, "e2e4")
	texts := h.sender.texts(n)
	if len(texts) != 2 || texts[1] != "Last move: e2 → e4. *bob* (black) to play." {
		t.Fatalf("texts = %q", texts)
	}
	if !strings.Contains(texts[0], "lastMove=e2e4") {
		t.Fatalf("image url = %q", texts[0])
	}

	h.play(t, "f5", "Qh5")
	last := h.sender.texts(h.sent() - 1)
	if last[0] != "Last move: d1 → h5. *bob* (black) to play. Check." {
		t.Fatalf("check text = %q", last)
	}
}

func TestTakebackByNonMovingPlayerIsRejected(t *testing.T) {
	h := newHarness(t, 0)
	h.pair(t, "alice", "bob")
	h.play(t, "e4")
	before, _ := h.sessions.Load(context.Background(), testKey)
	n := h.sent()
	if err := h.m.Takeback(context.Background(), testKey, "alice"); err != nil {
		t.Fatalf("Takeback: %v", err)
	}
	if texts := h.sender.texts(n); len(texts) != 1 || texts[0] != "Only the current player, *bob*, can take back the last move." {
		t.Fatalf("texts = %q", texts)
	}
	after, _ := h.sessions.Load(context.Background(), testKey)
	if strings.Join(after.MovesUCI, ",") != strings.Join(before.MovesUCI, ",") {
		t.Fatalf("moves changed: %v -> %v", before.MovesUCI, after.MovesUCI)
	}
}

func TestTakebackByCurrentPlayer(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.pair(t, "alice", "bob")
	h.now = h.now.Add(2 * time.Minute)
	h.play(t, "e4")
	moved, _ := h.sessions.Load(context.Background(), testKey)

	h.now = h.now.Add(time.Second)
	if err := h.m.Takeback(context.Background(), testKey, "bob"); err != nil {
		t.Fatalf("Takeback: %v", err)
	}
	g, _ := h.sessions.Load(context.Background(), testKey)
	if len(g.MovesUCI) != 0 {
		t.Fatalf("moves = %v", g.MovesUCI)
	}
	if !g.LastMoveAt.Equal(moved.LastMoveAt) {
		t.Fatalf("takeback must not touch last move time")
	}
	b, _ := g.Board()
	if b.Turn() != rules.White {
		t.Fatalf("turn = %s", b.Turn())
	}
}

func TestTakebackWithoutMoves(t *testing.T) {
	h := newHarness(t, 0)
	h.pair(t, "alice", "bob")
	n := h.sent()
	if err := h.m.Takeback(context.Background(), testKey, "alice"); err != nil {
		t.Fatalf("Takeback: %v", err)
	}
	if texts := h.sender.texts(n); len(texts) != 1 || texts[0] != "There are no moves to take back." {
		t.Fatalf("texts = %q", texts)
	}
}

func TestCheckmateFinishesGame(t *testing.T) {
	h := newHarness(t, 0)
	h.uploader.On("Upload", mock.Anything, mock.MatchedBy(func(pgn string) bool {
		return strings.Contains(pgn, `[Result "0-1"]`) && strings.Contains(pgn, "1. f3 e5 2. g4")
	})).Return("https://lichess.org/abc", nil).Once()
	h.archiver.On("SaveResult", mock.Anything, mock.MatchedBy(func(r archive.Result) bool {
		return r.Result == "0-1" && r.Method == "checkmate" && r.AnalysisURL == "https://lichess.org/abc" && len(r.MovesUCI) == 4
	})).Return(nil).Once()

	h.pair(t, "alice", "bob")
	n := h.sent()
	h.play(t, "f3", "e5", "g4", "Qh4")

	texts := h.sender.texts(n)
	analysis := "This game is available for analysis at https://lichess.org/abc"
	win := "*bob* (black) wins! Say `tarrasch start` to play another game."
	if len(texts) < 2 || texts[len(texts)-2] != analysis || texts[len(texts)-1] != win {
		t.Fatalf("texts = %q", texts)
	}
	if _, err := h.sessions.Load(context.Background(), testKey); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("session should be deleted, err = %v", err)
	}
	ctx := context.Background()
	bob, _ := h.recs.Get(ctx, "bob")
	alice, _ := h.recs.Get(ctx, "alice")
	if bob["alice"] != (records.Tally{Win: 1}) || alice["bob"] != (records.Tally{Loss: 1}) {
		t.Fatalf("records bob=%+v alice=%+v", bob, alice)
	}
	h.uploader.AssertExpectations(t)
	h.archiver.AssertExpectations(t)
}

func TestForfeitWithFailedUpload(t *testing.T) {
	h := newHarness(t, 0)
	h.uploader.On("Upload", mock.Anything, mock.Anything).Return("", errors.New("boom"))
	h.archiver.On("SaveResult", mock.Anything, mock.Anything).Return(errors.New("db down"))
	h.pair(t, "alice", "bob")
	h.play(t, "e4")
	n := h.sent()

	// black to move, so black forfeits
	if err := h.m.Forfeit(context.Background(), testKey, "bob"); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	texts := h.sender.texts(n)
	want := []string{
		"There was a problem uploading the game for analysis, sorry :anguished:",
		"*alice* (white) wins! Say `tarrasch start` to play another game.",
	}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Fatalf("texts = %q", texts)
	}
	if _, err := h.sessions.Load(context.Background(), testKey); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("session should be deleted, err = %v", err)
	}
	alice, _ := h.recs.Get(context.Background(), "alice")
	if alice["bob"] != (records.Tally{Win: 1}) {
		t.Fatalf("alice record = %+v", alice)
	}
}

func TestSelfPlayDoesNotTouchRecords(t *testing.T) {
	h := newHarness(t, 0)
	h.uploader.On("Upload", mock.Anything, mock.Anything).Return("https://lichess.org/self", nil)
	h.archiver.On("SaveResult", mock.Anything, mock.Anything).Return(nil)
	h.pair(t, "alice", "alice")
	if err := h.m.Forfeit(context.Background(), testKey, "alice"); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	if n, _ := h.recs.PlayerCount(context.Background()); n != 0 {
		t.Fatalf("players = %d", n)
	}
}

func TestBoardIsIdempotent(t *testing.T) {
	h := newHarness(t, 0)
	h.pair(t, "alice", "bob")
	h.play(t, "d4", "d5")
	before, _ := h.sessions.Load(context.Background(), testKey)

	n := h.sent()
	_ = h.m.Board(context.Background(), testKey)
	first := h.sender.texts(n)
	n = h.sent()
	_ = h.m.Board(context.Background(), testKey)
	second := h.sender.texts(n)
	if strings.Join(first, "|") != strings.Join(second, "|") || len(first) != 2 {
		t.Fatalf("renders differ: %q vs %q", first, second)
	}
	after, _ := h.sessions.Load(context.Background(), testKey)
	if !after.UpdatedAt.Equal(before.UpdatedAt) || strings.Join(after.MovesUCI, ",") != strings.Join(before.MovesUCI, ",") {
		t.Fatalf("board mutated the session")
	}
}

func TestNoSessionPropagates(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	checks := map[string]error{
		"board":    h.m.Board(ctx, testKey),
		"move":     h.m.Move(ctx, testKey, "alice", []string{"e4"}),
		"takeback": h.m.Takeback(ctx, testKey, "alice"),
		"forfeit":  h.m.Forfeit(ctx, testKey, "alice"),
	}
	for name, err := range checks {
		if !errors.Is(err, session.ErrNoSession) {
			t.Fatalf("%s err = %v, want ErrNoSession", name, err)
		}
	}
	if h.sent() != 0 {
		t.Fatalf("handlers must leave the prompt to the dispatcher")
	}
}

func TestFinishUndeterminedHasNoSideEffects(t *testing.T) {
	h := newHarness(t, 0)
	h.pair(t, "alice", "bob")
	g, _ := h.sessions.Load(context.Background(), testKey)
	b, _ := g.Board()
	n := h.sent()
	err := h.m.finish(context.Background(), g, b, rules.NoResult)
	if !errors.Is(err, ErrOutcomeUndetermined) {
		t.Fatalf("err = %v", err)
	}
	if h.sent() != n {
		t.Fatalf("messages sent on undetermined outcome")
	}
	if _, err := h.sessions.Load(context.Background(), testKey); err != nil {
		t.Fatalf("session must survive: %v", err)
	}
	h.uploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}
