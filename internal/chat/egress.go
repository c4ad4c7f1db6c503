package chat

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Egress sends text into a chat room over whichever transport is configured.
type Egress interface {
	SendText(ctx context.Context, room, text string) error
}

const (
	TransportHTTP = "http"
	TransportWS   = "ws"
	TransportAuto = "auto"
)

const wsWriteTimeout = 5 * time.Second

// NewEgress builds an Egress for mode. Auto prefers the websocket while it is connected and
// falls back to HTTP once when a websocket write fails. Dry-run logs instead of sending.
func NewEgress(mode string, dryrun bool, c *Client, ws *WebSocket, log *zap.Logger) Egress {
	if log == nil {
		log = zap.NewNop()
	}
	if dryrun {
		return &dryRunEgress{log: log}
	}
	switch mode {
	case TransportWS:
		return &wsEgress{ws: ws}
	case TransportAuto:
		return &autoEgress{ws: &wsEgress{ws: ws}, http: &httpEgress{c: c}, log: log}
	default:
		return &httpEgress{c: c}
	}
}

type httpEgress struct{ c *Client }

func (h *httpEgress) SendText(ctx context.Context, room, text string) error {
	if h == nil || h.c == nil {
		return errors.New("http egress not available")
	}
	return h.c.SendText(ctx, room, text)
}

type wsEgress struct{ ws *WebSocket }

func (w *wsEgress) SendText(ctx context.Context, room, text string) error {
	if w == nil || w.ws == nil {
		return errors.New("ws egress not available")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wsWriteTimeout)
		defer cancel()
	}
	return w.ws.Write(ctx, &ReplyRequest{Type: "text", Room: room, Data: text})
}

type autoEgress struct {
	ws   *wsEgress
	http *httpEgress
	log  *zap.Logger
}

func (a *autoEgress) SendText(ctx context.Context, room, text string) error {
	if a.ws.ws != nil && a.ws.ws.Connected() {
		err := a.ws.SendText(ctx, room, text)
		if err == nil {
			return nil
		}
		a.log.Warn("egress_fallback", zap.String("room", room), zap.Error(err))
	}
	return a.http.SendText(ctx, room, text)
}

type dryRunEgress struct{ log *zap.Logger }

func (d *dryRunEgress) SendText(_ context.Context, room, text string) error {
	d.log.Info("chat_egress_dryrun", zap.String("room", room), zap.String("text", text))
	return nil
}

// RoomSink binds an Egress to the room turn notices go to.
type RoomSink struct {
	Egress Egress
	Room   string
}

func (s RoomSink) SendText(ctx context.Context, text string) error {
	if s.Egress == nil || s.Room == "" {
		return errors.New("chat sink not configured")
	}
	return s.Egress.SendText(ctx, s.Room, text)
}
