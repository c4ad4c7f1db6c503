package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/turnledger/internal/bot"
	"github.com/park285/turnledger/internal/chat"
	"github.com/park285/turnledger/internal/config"
	"github.com/park285/turnledger/internal/httpapi"
	"github.com/park285/turnledger/internal/ledger"
	"github.com/park285/turnledger/internal/msgcat"
	"github.com/park285/turnledger/internal/notify"
	"github.com/park285/turnledger/internal/obslog"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := obslog.Init(obslog.Options{
		Level:   cfg.LogLevel,
		Console: cfg.LogConsole,
		ToFile:  cfg.LogToFile,
		File:    cfg.LogFile,
		Format:  cfg.LogFormat,
		Caller:  cfg.LogCaller,
	}); err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer obslog.Sync()
	log := obslog.L()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("store_ready", zap.String("backend", cfg.StoreBackend))

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}

	// --- Chat relay ---
	var client *chat.Client
	if cfg.ChatBaseURL != "" {
		client = chat.NewClient(cfg.ChatBaseURL, chat.WithHeaderProvider(chat.StaticHeaders(cfg.ChatHeaders())))
	}
	var ws *chat.WebSocket
	if cfg.ChatWSURL != "" {
		ws = chat.NewWebSocket(cfg.ChatWSURL, 5, time.Second)
		ws.SetHeaderProvider(chat.StaticHeaders(cfg.ChatHeaders()))
		ws.SetLogger(obslog.Named("chat.ws"))
		ws.OnStateChange(func(state chat.ConnState) {
			log.Info("ws_state", zap.String("state", string(state)))
		})
	}
	egress := chat.NewEgress(cfg.ChatTransport, cfg.ChatDryRun, client, ws, obslog.Named("chat"))

	var sink notify.Sink = notify.LogSink{Log: obslog.Named("notify")}
	if cfg.ChatRoom != "" && (client != nil || ws != nil || cfg.ChatDryRun) {
		sink = chat.RoomSink{Egress: egress, Room: cfg.ChatRoom}
	}

	l := ledger.New(store,
		ledger.WithNotifier(notify.New(sink, cat, cfg.NotifyTimeout, obslog.Named("notify"))),
		ledger.WithMaxAttempts(cfg.MaxUpdateAttempts),
	)

	// --- HTTP ---
	checks := map[string]httpapi.Checker{"store": httpapi.CheckerFunc(store.Ping)}
	if client != nil {
		checks["chat"] = httpapi.CheckerFunc(client.Ping)
	}
	srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.New(l, checks, obslog.Named("http")).Handler(), log)

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx)
	})

	if ws != nil {
		b := bot.New(l, egress, cat, bot.Options{
			Prefix:       cfg.BotPrefix,
			AllowedRooms: cfg.AllowedRooms,
			FoldAfter:    10,
			Log:          obslog.Named("bot"),
		})
		ws.OnMessage(func(msg *chat.Message) { b.Handle(gctx, msg) })
		if err := ws.Connect(gctx); err != nil {
			// Connect keeps retrying in the background.
			log.Warn("ws_connect_error", zap.Error(err))
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting_down")
		if ws != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ws.Close(closeCtx); err != nil {
				log.Warn("ws_close_error", zap.Error(err))
			}
		}
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}
