package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/app"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/chat"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/command"
	appcfg "github.com/park285/Tarrasch-KakaoTalk-bot/internal/config"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/telegram"
	"go.uber.org/zap"
)

func main() {
	envErr := godotenv.Load()
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()
	if envErr != nil {
		obslog.L().Debug("dotenv_skipped", zap.Error(envErr))
	}

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Transport {
	case appcfg.TransportTelegram:
		err = runTelegram(ctx, cfg)
	case appcfg.TransportConsole:
		err = runConsole(ctx, cfg)
	default:
		err = runIris(ctx, cfg)
	}
	if err != nil {
		obslog.L().Error("bot_exit", zap.Error(err))
		os.Exit(1)
	}
}

func runIris(ctx context.Context, cfg *appcfg.AppConfig) error {
	client := irisfast.NewClient(cfg.IrisBaseURL,
		irisfast.WithHeaderProvider(cfg.Headers),
		irisfast.WithTimeout(8*time.Second),
	)

	ws := irisfast.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
	ws.SetHeaderProvider(cfg.Headers)
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		obslog.L().Info("ws_state", zap.String("state", state.String()))
	})

	bot, err := app.New(ctx, cfg, irisfast.NewEgress(cfg.IrisEgress, false, client, ws, obslog.L()))
	if err != nil {
		return err
	}
	defer bot.Close()

	ws.OnMessage(func(msg *irisfast.Message) {
		if msg == nil || msg.Msg == "" {
			return
		}
		if !cfg.RoomAllowed(msg.Room) {
			obslog.L().Debug("room_ignored", zap.String("room", msg.Room))
			return
		}
		text, ok := command.StripPrefix(cfg.BotPrefix, msg.Msg)
		if !ok {
			return
		}
		// Avoid blocking the WS loop
		go bot.Handle(ctx, command.Message{
			Channel: msg.Room,
			Thread:  msg.Thread(),
			User:    msg.UserName(),
			Text:    text,
		})
	})

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = ws.Connect(cctx)
	cancel()
	if err != nil {
		return fmt.Errorf("ws connect: %w", err)
	}

	<-ctx.Done()
	return ws.Close(context.Background())
}

func runTelegram(ctx context.Context, cfg *appcfg.AppConfig) error {
	api, err := telegram.Dial(cfg.TelegramToken)
	if err != nil {
		return err
	}
	tg := telegram.New(api, cfg.BotPrefix)
	bot, err := app.New(ctx, cfg, tg)
	if err != nil {
		return err
	}
	defer bot.Close()

	tg.Run(ctx, func(msg command.Message) {
		if !cfg.RoomAllowed(msg.Channel) {
			return
		}
		go bot.Handle(ctx, msg)
	})
	return nil
}

// runConsole reads "user: text" lines from stdin and prints replies to stdout.
func runConsole(ctx context.Context, cfg *appcfg.AppConfig) error {
	out := chat.SenderFunc(func(_ context.Context, _, text, _ string) error {
		_, err := fmt.Fprintln(os.Stdout, text)
		return err
	})
	bot, err := app.New(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer bot.Close()

	fmt.Fprintf(os.Stdout, "type \"<user>: %s <command>\", Ctrl-D to quit\n", cfg.BotPrefix)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			user, text, found := strings.Cut(line, ":")
			if !found || strings.TrimSpace(user) == "" {
				continue
			}
			if rest, ok := command.StripPrefix(cfg.BotPrefix, text); ok {
				bot.Handle(ctx, command.Message{Channel: "console", User: strings.TrimSpace(user), Text: rest})
			}
		}
	}
}
