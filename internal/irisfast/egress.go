package irisfast

import (
	"context"
	"errors"

	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/chat"
	"go.uber.org/zap"
)

type transportMode string

const (
	transportHTTP transportMode = "http"
	transportWS   transportMode = "ws"
	transportAuto transportMode = "auto"
)

// NewEgress picks how replies leave the bot. In auto mode the websocket is preferred
// while connected, with one HTTP fallback per message.
func NewEgress(mode string, dryrun bool, c *Client, ws *WebSocket, logger *zap.Logger) chat.Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch transportMode(mode) {
	case transportWS:
		return &wsEgress{ws: ws, dryrun: dryrun, logger: logger}
	case transportAuto:
		return &autoEgress{ws: &wsEgress{ws: ws, dryrun: dryrun, logger: logger}, http: &httpEgress{c: c}, logger: logger}
	default:
		return &httpEgress{c: c}
	}
}

type httpEgress struct{ c *Client }

func (h *httpEgress) SendMessage(ctx context.Context, room, message, thread string) error {
	if h == nil || h.c == nil {
		return errors.New("http egress not available")
	}
	return h.c.SendMessage(ctx, room, message, thread)
}

// wsEgress writes ReplyRequest frames over the ingress websocket.
type wsEgress struct {
	ws     *WebSocket
	dryrun bool
	logger *zap.Logger
}

func (w *wsEgress) SendMessage(ctx context.Context, room, message, thread string) error {
	if w == nil || w.ws == nil {
		return errors.New("ws egress not available")
	}
	if w.dryrun {
		w.logger.Info("ws_egress_dryrun", zap.String("room", room), zap.String("thread", thread))
		return nil
	}
	return w.ws.WriteJSON(ctx, &ReplyRequest{Type: "text", Room: room, Data: message, ThreadID: thread})
}

func (w *wsEgress) connected() bool {
	return w != nil && w.ws != nil && w.ws.State() == WSStateConnected
}

type autoEgress struct {
	ws     *wsEgress
	http   *httpEgress
	logger *zap.Logger
}

func (a *autoEgress) SendMessage(ctx context.Context, room, message, thread string) error {
	if a.ws.connected() {
		err := a.ws.SendMessage(ctx, room, message, thread)
		if err == nil {
			return nil
		}
		a.logger.Warn("egress_fallback", zap.String("room", room), zap.Error(err))
	}
	return a.http.SendMessage(ctx, room, message, thread)
}
