package notify

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/turnledger/internal/ledger"
	"github.com/park285/turnledger/internal/msgcat"
	"github.com/park285/turnledger/internal/obslog"
)

// DefaultTimeout bounds a single sink delivery.
const DefaultTimeout = 5 * time.Second

// Sink posts one line of text to wherever the group chat lives.
type Sink interface {
	SendText(ctx context.Context, text string) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, text string) error

func (f SinkFunc) SendText(ctx context.Context, text string) error { return f(ctx, text) }

// Notifier renders a turn notice from the message catalog and hands it to a Sink.
// Delivery failures are logged and dropped.
type Notifier struct {
	sink    Sink
	cat     *msgcat.Catalog
	timeout time.Duration
	log     *zap.Logger
}

var _ ledger.Notifier = (*Notifier)(nil)

func New(sink Sink, cat *msgcat.Catalog, timeout time.Duration, log *zap.Logger) *Notifier {
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = obslog.Named("notify")
	}
	return &Notifier{sink: sink, cat: cat, timeout: timeout, log: log}
}

// TurnTaken renders and sends the notice. The request context only contributes values;
// its cancellation does not cut a delivery short.
func (n *Notifier) TurnTaken(ctx context.Context, notice ledger.TurnNotice) {
	if n == nil || n.sink == nil || notice.Game == nil {
		return
	}
	key, text, err := n.Render(notice)
	if err != nil {
		n.log.Warn("notify_error",
			zap.String("stage", "render"),
			zap.String("template", key),
			zap.String("game", notice.Game.Name),
			zap.Error(err),
		)
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	start := time.Now()
	if err := n.sink.SendText(sendCtx, text); err != nil {
		n.log.Warn("notify_error",
			zap.String("stage", "send"),
			zap.String("game", notice.Game.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	n.log.Debug("notify_sent",
		zap.String("game", notice.Game.Name),
		zap.String("outcome", string(notice.Outcome)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// Render picks the message variant for the notice and returns its key and text.
func (n *Notifier) Render(notice ledger.TurnNotice) (string, string, error) {
	key := "turn.webhook"
	data := map[string]any{
		"Player": mention(notice),
		"Game":   notice.Game.Name,
		"Turn":   notice.Game.TurnNumber,
	}
	ev := notice.Event
	if ev.Source == ledger.SourcePYDT && strings.TrimSpace(ev.Leader) != "" && strings.TrimSpace(ev.Civilization) != "" {
		key = "turn.pydt"
		data["Leader"] = strings.TrimSpace(ev.Leader)
		data["Civilization"] = strings.TrimSpace(ev.Civilization)
	}
	text, err := n.cat.Render(key, data)
	return key, text, err
}

func mention(notice ledger.TurnNotice) string {
	if m := notice.Player.Mention(); m != "" {
		return m
	}
	return notice.Event.Handle
}

// LogSink writes messages to the logger instead of a chat room.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) SendText(_ context.Context, text string) error {
	log := s.Log
	if log == nil {
		log = obslog.Named("notify")
	}
	log.Info("notify_dryrun", zap.String("text", text))
	return nil
}
