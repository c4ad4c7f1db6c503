package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/turnledger/internal/obslog"
)

var ErrNotConnected = errors.New("chat websocket not connected")

// WebSocket is a reconnecting relay stream. Inbound frames are decoded as Message and fanned
// out to callbacks; Write sends frames back over the same connection.
type WebSocket struct {
	url     string
	headers HeaderProvider
	log     *zap.Logger

	mu    sync.RWMutex
	conn  *websocket.Conn
	state ConnState

	writeMu sync.Mutex

	cbMu     sync.RWMutex
	msgCbs   []MessageCallback
	stateCbs []StateCallback

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration

	rootCtx    context.Context
	rootCancel context.CancelFunc
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewWebSocket(url string, maxReconnectAttempts int, reconnectDelay time.Duration) *WebSocket {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocket{
		url:                  url,
		log:                  obslog.Named("chat.ws"),
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		pingInterval:         30 * time.Second,
		rootCtx:              ctx,
		rootCancel:           cancel,
		stopCh:               make(chan struct{}),
	}
}

func (ws *WebSocket) SetHeaderProvider(h HeaderProvider) { ws.headers = h }

func (ws *WebSocket) SetLogger(log *zap.Logger) {
	if log != nil {
		ws.log = log
	}
}

func (ws *WebSocket) OnMessage(cb MessageCallback) {
	ws.cbMu.Lock()
	ws.msgCbs = append(ws.msgCbs, cb)
	ws.cbMu.Unlock()
}

func (ws *WebSocket) OnStateChange(cb StateCallback) {
	ws.cbMu.Lock()
	ws.stateCbs = append(ws.stateCbs, cb)
	ws.cbMu.Unlock()
}

func (ws *WebSocket) State() ConnState {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.state
}

func (ws *WebSocket) Connected() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.conn != nil && ws.state == StateConnected
}

// Connect dials once. On failure a background reconnect loop is scheduled and the dial error
// is still returned.
func (ws *WebSocket) Connect(ctx context.Context) error {
	ws.mu.Lock()
	if ws.state == StateConnected || ws.state == StateConnecting {
		ws.mu.Unlock()
		return nil
	}
	ws.mu.Unlock()
	ws.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := ws.dial(dialCtx)
	if err != nil {
		ws.log.Warn("ws_connect_failed", zap.String("url", ws.url), zap.Error(err))
		ws.setState(StateFailed)
		ws.scheduleReconnect()
		return err
	}
	ws.attach(conn)
	return nil
}

func (ws *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, ws.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      ws.buildHeaders(),
	})
	return conn, err
}

func (ws *WebSocket) attach(conn *websocket.Conn) {
	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()
	ws.setState(StateConnected)

	ws.wg.Add(2)
	go ws.listen(conn)
	go ws.pingLoop(conn)
}

// drop closes conn if it is still the active connection and reports whether it was.
func (ws *WebSocket) drop(conn *websocket.Conn, code websocket.StatusCode, reason string) bool {
	ws.mu.Lock()
	if ws.conn != conn || conn == nil {
		ws.mu.Unlock()
		return false
	}
	ws.conn = nil
	ws.mu.Unlock()
	_ = conn.Close(code, reason)
	return true
}

func (ws *WebSocket) listen(conn *websocket.Conn) {
	defer ws.wg.Done()
	for {
		var msg Message
		if err := wsjson.Read(ws.rootCtx, conn, &msg); err != nil {
			if ws.isStopping() {
				return
			}
			if ws.drop(conn, websocket.StatusGoingAway, "reconnect") {
				ws.log.Warn("ws_read_failed", zap.Error(err))
				ws.setState(StateDisconnected)
				ws.scheduleReconnect()
			}
			return
		}

		ws.cbMu.RLock()
		callbacks := append([]MessageCallback(nil), ws.msgCbs...)
		ws.cbMu.RUnlock()
		for _, cb := range callbacks {
			if cb != nil {
				cb(&msg)
			}
		}
	}
}

func (ws *WebSocket) pingLoop(conn *websocket.Conn) {
	defer ws.wg.Done()
	t := time.NewTicker(ws.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ws.stopCh:
			return
		case <-t.C:
		}
		ws.mu.RLock()
		active := ws.conn == conn
		ws.mu.RUnlock()
		if !active {
			return
		}
		ctx, cancel := context.WithTimeout(ws.rootCtx, 3*time.Second)
		err := conn.Ping(ctx)
		cancel()
		if err == nil {
			failures = 0
			continue
		}
		failures++
		if failures >= 2 && !ws.isStopping() {
			if ws.drop(conn, websocket.StatusGoingAway, "ping failure") {
				ws.log.Warn("ws_ping_failed", zap.Error(err))
				ws.setState(StateDisconnected)
				ws.scheduleReconnect()
			}
			return
		}
	}
}

func (ws *WebSocket) scheduleReconnect() {
	if ws.maxReconnectAttempts <= 0 || ws.isStopping() {
		return
	}
	ws.setState(StateReconnecting)

	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		for attempt := 1; attempt <= ws.maxReconnectAttempts; attempt++ {
			select {
			case <-ws.stopCh:
				return
			case <-time.After(ws.reconnectDelay + backoffDuration(attempt)):
			}
			dialCtx, cancel := context.WithTimeout(ws.rootCtx, 10*time.Second)
			conn, err := ws.dial(dialCtx)
			cancel()
			if err != nil {
				ws.log.Debug("ws_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			if ws.isStopping() {
				_ = conn.Close(websocket.StatusNormalClosure, "close")
				return
			}
			ws.log.Info("ws_reconnected", zap.Int("attempt", attempt))
			ws.attach(conn)
			return
		}
		ws.setState(StateFailed)
	}()
}

// Write sends v as one JSON frame. Writes are serialized.
func (ws *WebSocket) Write(ctx context.Context, v any) error {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	ws.mu.RLock()
	conn, state := ws.conn, ws.state
	ws.mu.RUnlock()
	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}
	return wsjson.Write(ctx, conn, v)
}

func (ws *WebSocket) setState(state ConnState) {
	ws.mu.Lock()
	ws.state = state
	ws.mu.Unlock()

	ws.cbMu.RLock()
	callbacks := append([]StateCallback(nil), ws.stateCbs...)
	ws.cbMu.RUnlock()
	for _, cb := range callbacks {
		if cb != nil {
			cb(state)
		}
	}
}

// Close stops reconnecting, closes the connection and waits for the reader goroutines.
func (ws *WebSocket) Close(ctx context.Context) error {
	ws.stopOnce.Do(func() { close(ws.stopCh) })
	ws.mu.RLock()
	conn := ws.conn
	ws.mu.RUnlock()
	ws.drop(conn, websocket.StatusNormalClosure, "close")
	ws.rootCancel()

	done := make(chan struct{})
	go func() {
		ws.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		ws.setState(StateDisconnected)
		return nil
	}
}

func (ws *WebSocket) isStopping() bool {
	select {
	case <-ws.stopCh:
		return true
	default:
		return false
	}
}

func (ws *WebSocket) buildHeaders() http.Header {
	hdr := http.Header{}
	if ws.headers == nil {
		return hdr
	}
	for k, v := range ws.headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
