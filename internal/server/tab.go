package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/sessionwatch"
	"github.com/MrEthical07/sessionwatch/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 64
)

// Server to client message types.
const (
	MsgWarning       = "warning"
	MsgCountdown     = "countdown"
	MsgWarningClosed = "warning_closed"
	MsgRedirect      = "redirect"
	MsgReload        = "reload"
	MsgError         = "error"
)

// Client to server message types.
const (
	MsgActivity = "activity"
	MsgExtend   = "extend"
	MsgNavigate = "navigate"
)

// Message is one websocket frame in either direction.
type Message struct {
	Type     string `json:"type"`
	Seconds  *int   `json:"seconds,omitempty"`
	Location string `json:"location,omitempty"`
	Path     string `json:"path,omitempty"`
	Error    string `json:"error,omitempty"`
}

// wsTab is the browser view behind one websocket. It renders the expiry
// prompt and navigation as outbound messages.
type wsTab struct {
	signIn    string
	protected string
	logger    *zap.Logger

	mu     sync.Mutex
	path   string
	send   chan []byte
	closed bool
}

func newWSTab(path, signIn, protected string, logger *zap.Logger) *wsTab {
	return &wsTab{
		signIn:    signIn,
		protected: protected,
		logger:    logger,
		path:      path,
		send:      make(chan []byte, sendBuffer),
	}
}

func (t *wsTab) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		t.logger.Error("encode tab message", zap.Error(err))
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.send <- data:
	default:
		t.logger.Warn("tab send buffer full, dropping message", zap.String("type", msg.Type))
	}
}

func (t *wsTab) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.send)
	}
}

func (t *wsTab) setPath(p string) {
	t.mu.Lock()
	t.path = p
	t.mu.Unlock()
}

func seconds(n int) *int { return &n }

func (t *wsTab) OpenWarning(n int)   { t.enqueue(Message{Type: MsgWarning, Seconds: seconds(n)}) }
func (t *wsTab) UpdateWarning(n int) { t.enqueue(Message{Type: MsgCountdown, Seconds: seconds(n)}) }
func (t *wsTab) CloseWarning()       { t.enqueue(Message{Type: MsgWarningClosed}) }
func (t *wsTab) Reload()             { t.enqueue(Message{Type: MsgReload}) }

func (t *wsTab) RedirectToSignIn() {
	t.setPath(t.signIn)
	t.enqueue(Message{Type: MsgRedirect, Location: t.signIn})
}

func (t *wsTab) InProtectedArea() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.HasPrefix(t.path, t.protected)
}

// handleTab upgrades to a websocket and runs one tab for its lifetime.
// The tab is opened before the upgrade so the watchdog is armed by the time
// the client sees the handshake.
func (s *Server) handleTab(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = s.cfg.Routes.HomePath
	}
	ns := middleware.NamespaceFromRequest(r)
	ctx := sessionwatch.WithClientIP(context.Background(), middleware.ClientIP(r))

	id := uuid.NewString()
	logger := s.logger.Named("ws").With(zap.String("tab", id))
	view := newWSTab(path, s.cfg.Routes.SignInPath, s.cfg.Routes.ProtectedPrefix, logger)
	tab, err := s.monitor.OpenTab(ctx, sessionwatch.TabOptions{
		Namespace: ns,
		ID:        id,
		Prompter:  view,
		Navigator: view,
	})
	if err != nil {
		logger.Warn("open tab failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "tab unavailable")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		view.logger.Debug("websocket upgrade failed", zap.Error(err))
		_ = tab.Close()
		view.close()
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(conn, view.send, view.logger)
	}()

	tab.Check(ctx)
	s.readPump(ctx, conn, tab, view)

	_ = tab.Close()
	view.close()
	<-done
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, tab *sessionwatch.Tab, view *wsTab) {
	limiter := rate.NewLimiter(rate.Limit(s.cfg.Server.WSMessagesPerSecond), s.cfg.Server.WSBurst)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				view.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if !limiter.Allow() {
			view.enqueue(Message{Type: MsgError, Error: "rate_limited"})
			continue
		}
		s.handleTabMessage(ctx, tab, view, msg)
	}
}

func (s *Server) handleTabMessage(ctx context.Context, tab *sessionwatch.Tab, view *wsTab, msg Message) {
	switch msg.Type {
	case MsgActivity:
		s.touchTab(ctx, tab, view)
	case MsgExtend:
		if err := tab.Extend(ctx); err != nil {
			switch {
			case errors.Is(err, sessionwatch.ErrNotWarning):
				// late click after the prompt already closed
			case errors.Is(err, sessionwatch.ErrTerminated), errors.Is(err, sessionwatch.ErrNoSession):
				view.enqueue(Message{Type: MsgError, Error: "session_ended"})
			default:
				view.logger.Warn("tab extend failed", zap.Error(err))
				view.enqueue(Message{Type: MsgError, Error: "extend_failed"})
			}
		}
	case MsgNavigate:
		if !strings.HasPrefix(msg.Path, "/") {
			view.enqueue(Message{Type: MsgError, Error: "invalid_path"})
			return
		}
		view.setPath(msg.Path)
		if !tab.Check(ctx) && view.InProtectedArea() {
			s.touchTab(ctx, tab, view)
		}
	default:
		view.enqueue(Message{Type: MsgError, Error: "unknown_type"})
	}
}

func (s *Server) touchTab(ctx context.Context, tab *sessionwatch.Tab, view *wsTab) {
	if _, _, err := tab.Touch(ctx); err != nil && !errors.Is(err, sessionwatch.ErrTerminated) {
		view.logger.Warn("tab touch failed", zap.Error(err))
	}
}

func writePump(conn *websocket.Conn, send <-chan []byte, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case data, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
