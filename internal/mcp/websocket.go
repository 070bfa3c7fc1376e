package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/paolino/mcp-memory-server/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBuffer     = 64
	maxMessageSize = 4 << 20
)

// ErrSendQueueFull is returned when a slow client stops draining replies.
var ErrSendQueueFull = errors.New("websocket send queue full")

// ErrConnClosed is returned for replies to a connection that has gone.
var ErrConnClosed = errors.New("websocket connection closed")

// WebSocketServer serves each connection as its own MCP client session.
// Every text message is one JSON-RPC message; messages of one connection are
// handled concurrently.
type WebSocketServer struct {
	server   *Server
	upgrader websocket.Upgrader
	maxConns int

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

// NewWebSocketServer wraps s for WebSocket clients. maxConns bounds the
// number of open TCP connections; zero means unlimited.
func NewWebSocketServer(s *Server, maxConns int) *WebSocketServer {
	return &WebSocketServer{
		server:   s,
		maxConns: maxConns,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(map[*wsConn]struct{}),
	}
}

// Handler returns the HTTP handler: /mcp upgrades, /healthz reports liveness.
func (ws *WebSocketServer) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		ws.serveConn(ctx, w, r)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (ws *WebSocketServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ws.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (ws *WebSocketServer) Serve(ctx context.Context, ln net.Listener) error {
	if ws.maxConns > 0 {
		ln = netutil.LimitListener(ln, ws.maxConns)
	}
	srv := &http.Server{
		Handler:           ws.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("websocket listener started", "addr", ln.Addr().String(), "maxConnections", ws.maxConns)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	ws.closeAll()
	log.Infow("websocket listener stopped")
	return err
}

func (ws *WebSocketServer) closeAll() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for c := range ws.conns {
		c.close()
	}
}

func (ws *WebSocketServer) track(c *wsConn, add bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if add {
		ws.conns[c] = struct{}{}
	} else {
		delete(ws.conns, c)
	}
}

type wsConn struct {
	conn     *websocket.Conn
	sendChan chan []byte
	done     chan struct{}
	once     sync.Once
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *wsConn) send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.sendChan <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendQueueFull
	}
}

func (ws *WebSocketServer) serveConn(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &wsConn{
		conn:     conn,
		sendChan: make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
	ws.track(c, true)
	defer ws.track(c, false)

	sess := newWSSession()
	l := log.With(logging.KeySessionID, sess.id, "transport", "websocket")
	if err := ws.server.mcp.RegisterSession(ctx, sess); err != nil {
		l.Errorw("failed to register session", "error", err)
		c.close()
		return
	}
	defer ws.server.mcp.UnregisterSession(ctx, sess.id)

	sessCtx := logging.NewContext(ws.server.mcp.WithContext(ctx, sess), l)
	l.Infow("websocket session started", "remote", r.RemoteAddr)

	go c.writePump()
	go c.forwardNotifications(sess, l)

	var pending sync.WaitGroup
	c.readPump(l, func(message []byte) {
		pending.Add(1)
		go func() {
			defer pending.Done()
			if reply := ws.server.HandleMessage(sessCtx, message); reply != nil {
				if err := c.send(reply); err != nil {
					l.Warnw("failed to send response", "error", err)
				}
			}
		}()
	})

	pending.Wait()
	c.close()
	l.Infow("websocket session ended")
}

func (c *wsConn) readPump(l *zap.SugaredLogger, handle func([]byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.Warnw("read error", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handle(message)
	}
}

func (c *wsConn) forwardNotifications(sess *wsSession, l *zap.SugaredLogger) {
	for {
		select {
		case <-c.done:
			return
		case n := <-sess.notifications:
			data, err := json.Marshal(n)
			if err != nil {
				l.Warnw("failed to marshal notification", "error", err)
				continue
			}
			if err := c.send(data); err != nil {
				l.Debugw("dropping notification", "method", n.Method, "error", err)
			}
		}
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.sendChan:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warnw("write error", "error", err)
				c.close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// wsSession is the MCP client session of one connection.
type wsSession struct {
	id            string
	notifications chan mcpgo.JSONRPCNotification
	initialized   atomic.Bool
}

func newWSSession() *wsSession {
	return &wsSession{
		id:            uuid.NewString(),
		notifications: make(chan mcpgo.JSONRPCNotification, sendBuffer),
	}
}

func (s *wsSession) SessionID() string { return s.id }

func (s *wsSession) NotificationChannel() chan<- mcpgo.JSONRPCNotification {
	return s.notifications
}

func (s *wsSession) Initialize() { s.initialized.Store(true) }

func (s *wsSession) Initialized() bool { return s.initialized.Load() }

var _ server.ClientSession = (*wsSession)(nil)
