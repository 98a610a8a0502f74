// Package telegram runs the bot over the Telegram Bot API with long polling.
// Telegram has no reply threads here: every chat is a single conversation.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/command"
	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/obslog"
	"go.uber.org/zap"
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	api    API
	prefix string
}

// Dial authenticates token against the Bot API.
func Dial(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return api, nil
}

func New(api API, prefix string) *Bot { return &Bot{api: api, prefix: prefix} }

// SendMessage implements chat.Sender. thread is ignored.
func (b *Bot) SendMessage(_ context.Context, channel, text, _ string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(channel), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", channel, err)
	}
	_, err = b.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// Run polls for updates and passes bot-addressed messages to handle until ctx ends.
func (b *Bot) Run(ctx context.Context, handle func(command.Message)) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	obslog.L().Info("telegram_started")
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			if msg, ok := b.ToCommand(update.Message); ok {
				handle(msg)
			}
		}
	}
}

// ToCommand converts a chat message. Slash commands ("/move e4", "/board@MyBot")
// are always addressed to the bot; plain text must start with the prefix.
func (b *Bot) ToCommand(m *tgbotapi.Message) (command.Message, bool) {
	if m == nil || m.Chat == nil || m.From == nil {
		return command.Message{}, false
	}
	var text string
	if m.IsCommand() {
		text = strings.TrimSpace(m.Command() + " " + m.CommandArguments())
	} else {
		rest, ok := command.StripPrefix(b.prefix, m.Text)
		if !ok {
			return command.Message{}, false
		}
		text = rest
	}
	obslog.L().Debug("telegram_message", zap.Int64("chat", m.Chat.ID), zap.String("text", text))
	return command.Message{
		Channel: strconv.FormatInt(m.Chat.ID, 10),
		User:    displayName(m.From),
		Text:    text,
	}, true
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return strconv.FormatInt(u.ID, 10)
}
