package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transports the bot can run on.
const (
	TransportIris     = "iris"
	TransportTelegram = "telegram"
	TransportConsole  = "console"
)

type AppConfig struct {
	BotPrefix string
	Transport string

	IrisBaseURL string
	IrisWSURL   string
	IrisEgress  string // http | ws | auto

	XUserID    string
	XUserEmail string
	XSessionID string

	TelegramToken string

	RedisURL    string
	DatabaseURL string

	Cooldown        time.Duration
	ClaimTTL        time.Duration
	SessionTTL      time.Duration
	AnalysisURL     string
	AnalysisTimeout time.Duration
	BoardImageURL   string

	AllowedRooms []string
	MessagesDir  string
}

// Headers are the X-User-* values forwarded to the Iris bridge.
func (c *AppConfig) Headers() map[string]string {
	h := map[string]string{}
	if c.XUserID != "" {
		h["X-User-Id"] = c.XUserID
	}
	if c.XUserEmail != "" {
		h["X-User-Email"] = c.XUserEmail
	}
	if c.XSessionID != "" {
		h["X-Session-Id"] = c.XSessionID
	}
	return h
}

// RoomAllowed reports whether the bot should answer in room. No list allows every room.
func (c *AppConfig) RoomAllowed(room string) bool {
	if len(c.AllowedRooms) == 0 {
		return true
	}
	room = strings.TrimSpace(room)
	for _, r := range c.AllowedRooms {
		if r == room {
			return true
		}
	}
	return false
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		BotPrefix:       "tarrasch",
		Transport:       TransportIris,
		IrisEgress:      "http",
		Cooldown:        0,
		AnalysisTimeout: 15 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("BOT_PREFIX")); v != "" {
		cfg.BotPrefix = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("TRANSPORT"))); v != "" {
		cfg.Transport = v
	}

	cfg.IrisBaseURL = strings.TrimSpace(os.Getenv("IRIS_BASE_URL"))
	cfg.IrisWSURL = strings.TrimSpace(os.Getenv("IRIS_WS_URL"))
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("IRIS_EGRESS"))); v != "" {
		cfg.IrisEgress = v
	}

	cfg.XUserID = strings.TrimSpace(os.Getenv("X_USER_ID"))
	cfg.XUserEmail = strings.TrimSpace(os.Getenv("X_USER_EMAIL"))
	cfg.XSessionID = strings.TrimSpace(os.Getenv("X_SESSION_ID"))

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	var err error
	if cfg.Cooldown, err = seconds("COOLDOWN_SECONDS", cfg.Cooldown); err != nil {
		return nil, err
	}
	if cfg.ClaimTTL, err = seconds("CLAIM_TTL_SECONDS", 0); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = seconds("SESSION_TTL_SECONDS", 0); err != nil {
		return nil, err
	}
	if cfg.AnalysisTimeout, err = seconds("ANALYSIS_TIMEOUT_SECONDS", cfg.AnalysisTimeout); err != nil {
		return nil, err
	}
	cfg.AnalysisURL = strings.TrimSpace(os.Getenv("ANALYSIS_URL"))
	cfg.BoardImageURL = strings.TrimSpace(os.Getenv("BOARD_IMAGE_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ROOMS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedRooms = append(cfg.AllowedRooms, s)
			}
		}
	}

	switch cfg.Transport {
	case TransportIris:
		if cfg.IrisBaseURL == "" {
			return nil, errors.New("IRIS_BASE_URL is required")
		}
		if cfg.IrisWSURL == "" {
			return nil, errors.New("IRIS_WS_URL is required")
		}
		switch cfg.IrisEgress {
		case "http", "ws", "auto":
		default:
			return nil, fmt.Errorf("IRIS_EGRESS must be http, ws or auto, got %q", cfg.IrisEgress)
		}
	case TransportTelegram:
		if cfg.TelegramToken == "" {
			return nil, errors.New("TELEGRAM_TOKEN is required")
		}
	case TransportConsole:
	default:
		return nil, fmt.Errorf("unknown TRANSPORT %q", cfg.Transport)
	}
	if cfg.Transport != TransportConsole && cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// seconds reads a non-negative whole number of seconds.
func seconds(name string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, v)
	}
	return time.Duration(n) * time.Second, nil
}
