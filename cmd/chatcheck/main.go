// Command chatcheck probes the chat relay: it prints /config and watches the websocket briefly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/park285/turnledger/internal/chat"
	"github.com/park285/turnledger/internal/obslog"
)

func main() {
	watch := flag.Duration("watch", 10*time.Second, "how long to observe websocket traffic")
	send := flag.String("send", "", "optional text to post into CHAT_ROOM")
	flag.Parse()

	if err := obslog.Init(obslog.Options{Level: "debug", Console: true, Format: "console"}); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer obslog.Sync()
	log := obslog.Named("chatcheck")

	baseURL := os.Getenv("CHAT_BASE_URL")
	wsURL := os.Getenv("CHAT_WS_URL")
	room := os.Getenv("CHAT_ROOM")
	if baseURL == "" {
		log.Fatal("CHAT_BASE_URL is required")
	}

	headers := chat.StaticHeaders(map[string]string{
		"X-User-Id":    os.Getenv("X_USER_ID"),
		"X-User-Email": os.Getenv("X_USER_EMAIL"),
		"X-Session-Id": os.Getenv("X_SESSION_ID"),
	})
	client := chat.NewClient(baseURL, chat.WithHeaderProvider(headers), chat.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg, err := client.GetConfig(ctx)
	if err != nil {
		log.Error("config_error", zap.Error(err))
	} else {
		log.Info("config_ok",
			zap.String("bot", cfg.BotName),
			zap.Int("port", cfg.Port),
			zap.Int("polling", cfg.PollingSpeed),
			zap.Int("rate", cfg.MessageRate),
			zap.String("endpoint", cfg.WebserverEndpoint),
		)
	}

	if *send != "" {
		if room == "" {
			log.Fatal("CHAT_ROOM is required with -send")
		}
		if err := client.SendText(ctx, room, *send); err != nil {
			log.Error("send_error", zap.Error(err))
		} else {
			log.Info("send_ok", zap.String("room", room))
		}
	}

	if wsURL == "" {
		log.Info("CHAT_WS_URL not set; skipping websocket check")
		return
	}

	ws := chat.NewWebSocket(wsURL, 5, time.Second)
	ws.SetHeaderProvider(headers)
	ws.SetLogger(obslog.Named("chat.ws"))
	ws.OnStateChange(func(state chat.ConnState) {
		log.Info("ws_state", zap.String("state", string(state)))
	})
	ws.OnMessage(func(msg *chat.Message) {
		log.Info("ws_message", zap.String("room", msg.Room), zap.String("from", msg.SenderName()), zap.String("text", msg.Msg))
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Error("ws_connect_error", zap.Error(err))
		_ = ws.Close(context.Background())
		return
	}

	time.Sleep(*watch)
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	_ = ws.Close(closeCtx)
}
