// Package app assembles the bot from configuration, independent of the chat transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/analysis"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/archive"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/boardimg"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/chat"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/claims"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/command"
	appcfg "github.com/park285/Tarrasch-KakaoTalk-bot/internal/config"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/game"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/records"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App owns the storage connections behind a Dispatcher.
type App struct {
	Dispatcher *command.Dispatcher
	Messages   *msgcat.Catalog

	rdb      *redis.Client
	embedded *miniredis.Miniredis
	repo     *archive.Repository
}

// New connects storage and builds the command pipeline replying through out.
// Without REDIS_URL an in-process Redis is started; state then lasts only as
// long as the process.
func New(ctx context.Context, cfg *appcfg.AppConfig, out chat.Sender) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	redisURL := cfg.RedisURL
	if redisURL == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("embedded redis: %w", err)
		}
		a.embedded = mr
		redisURL = "redis://" + mr.Addr()
		obslog.L().Warn("redis_embedded", zap.String("addr", mr.Addr()))
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URL: %w", err)
	}
	a.rdb = redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = a.rdb.Ping(pctx).Err()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	msgs, err := msgcat.New(cfg.MessagesDir, cfg.BotPrefix)
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	a.Messages = msgs
	linker, err := boardimg.NewLinker(cfg.BoardImageURL)
	if err != nil {
		return nil, fmt.Errorf("BOARD_IMAGE_URL: %w", err)
	}

	deps := game.Deps{
		Sessions: session.NewStore(a.rdb, cfg.SessionTTL),
		Claims:   claims.NewRegister(cfg.ClaimTTL),
		Records:  records.NewEngine(records.NewStore(a.rdb)),
		Images:   linker,
		Messages: msgs,
		Sender:   out,
	}
	if cfg.AnalysisURL != "off" {
		deps.Uploader = analysis.NewClient(cfg.AnalysisURL, analysis.WithTimeout(cfg.AnalysisTimeout))
	}
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		a.repo = repo
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("archive schema: %w", err)
		}
		deps.Archiver = repo
	}

	games, err := game.NewManager(deps, game.Config{Cooldown: cfg.Cooldown, Site: cfg.Transport})
	if err != nil {
		return nil, err
	}
	a.Dispatcher, err = command.NewDispatcher(games, deps.Records)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("app_ready",
		zap.String("transport", cfg.Transport),
		zap.String("prefix", cfg.BotPrefix),
		zap.Duration("cooldown", cfg.Cooldown),
		zap.Bool("archive", a.repo != nil),
		zap.Bool("analysis", deps.Uploader != nil),
	)
	ok = true
	return a, nil
}

// Handle dispatches msg and logs any failure; for use from transport goroutines.
func (a *App) Handle(ctx context.Context, msg command.Message) {
	if err := a.Dispatcher.Handle(ctx, msg); err != nil {
		obslog.L().Debug("handle_failed", zap.String("channel", msg.Channel), zap.Error(err))
	}
}

func (a *App) Close() error {
	var errs []error
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.embedded != nil {
		a.embedded.Close()
	}
	return errors.Join(errs...)
}
