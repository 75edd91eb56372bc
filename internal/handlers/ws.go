package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/memohai/chatgate/internal/auth"
	"github.com/memohai/chatgate/internal/chat"
	"github.com/memohai/chatgate/internal/hub"
	"github.com/memohai/chatgate/internal/logger"
)

// Websocket frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSubscribed  = "subscribed"
	FrameMessage     = "message"
	FrameError       = "error"
	FrameComplete    = "complete"
)

// Error codes carried by error frames.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeNotFound        = "not_found"
	CodeBadRequest      = "bad_request"
	CodeConflict        = "conflict"
	CodeUnavailable     = "unavailable"
	CodeLagged          = "lagged"
	CodeInternal        = "internal"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsReadLimit  = 64 * 1024
	wsQueueSize  = 64
)

// ClientFrame is a frame sent by the client.
type ClientFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Channel string `json:"channel"`
}

// ServerFrame is a frame sent to the client.
type ServerFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel,omitempty"`
	Message any    `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// WSHandler serves live channel subscriptions on GET /ws. The Authorization header is
// read once at upgrade; an anonymous connection is accepted but cannot subscribe.
type WSHandler struct {
	authn    *auth.Authenticator
	chat     *chat.Service
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates the websocket handler.
func NewWSHandler(log *slog.Logger, authn *auth.Authenticator, svc *chat.Service) *WSHandler {
	return &WSHandler{
		authn: authn,
		chat:  svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Or(log).With(slog.String("handler", "ws")),
	}
}

// Register mounts GET /ws.
func (h *WSHandler) Register(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Serve upgrades the connection and runs it until the client goes away.
func (h *WSHandler) Serve(c echo.Context) error {
	r := c.Request()
	id := h.authn.Authenticate(r.Context(), r.Header.Get(echo.HeaderAuthorization))
	conn, err := h.upgrader.Upgrade(c.Response(), r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", slog.Any("error", err))
		return nil
	}
	session := hub.NewSession(r.Context(), id)
	wc := &wsConn{
		conn:    conn,
		session: session,
		chat:    h.chat,
		out:     make(chan ServerFrame, wsQueueSize),
		subs:    map[string]*hub.Subscription{},
		logger:  h.logger.With(slog.String("session", session.ID()), slog.String("username", id.Username)),
	}
	wc.logger.Debug("connection opened", slog.Bool("anonymous", id.IsAnonymous()))
	wc.run()
	wc.logger.Debug("connection closed")
	return nil
}

// wsConn is one websocket connection. The reader runs on the request goroutine; every write
// goes through the writer goroutine.
type wsConn struct {
	conn    *websocket.Conn
	session *hub.Session
	chat    *chat.Service
	out     chan ServerFrame
	logger  *slog.Logger

	mu    sync.Mutex
	subs  map[string]*hub.Subscription
	pumps sync.WaitGroup
}

func (w *wsConn) run() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		w.write()
	}()

	w.read()

	// Closing the session makes the hub drop every subscription, which ends the pumps.
	w.session.Close()
	w.pumps.Wait()
	close(w.out)
	<-writerDone
	_ = w.conn.Close()
}

func (w *wsConn) read() {
	w.conn.SetReadLimit(wsReadLimit)
	_ = w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		var frame ClientFrame
		if err := w.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Debug("read failed", slog.Any("error", err))
			}
			return
		}
		switch frame.Type {
		case FrameSubscribe:
			w.subscribe(frame)
		case FrameUnsubscribe:
			w.unsubscribe(frame)
		default:
			w.send(ServerFrame{Type: FrameError, ID: frame.ID, Code: CodeBadRequest, Message: "unknown frame type " + frame.Type})
		}
	}
}

func (w *wsConn) write() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-w.out:
			if !ok {
				_ = w.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
				return
			}
			_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := w.conn.WriteJSON(frame); err != nil {
				w.logger.Debug("write failed", slog.Any("error", err))
				w.session.Close()
				w.drain()
				return
			}
		case <-ticker.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				w.session.Close()
				w.drain()
				return
			}
		}
	}
}

// drain discards queued frames after a write failure until the queue is closed.
func (w *wsConn) drain() {
	_ = w.conn.Close()
	for range w.out {
	}
}

// send queues frame for the writer. It gives up once the session is closed.
func (w *wsConn) send(frame ServerFrame) {
	select {
	case w.out <- frame:
	case <-w.session.Context().Done():
	}
}

func (w *wsConn) subscribe(frame ClientFrame) {
	if strings.TrimSpace(frame.ID) == "" {
		w.send(ServerFrame{Type: FrameError, Code: CodeBadRequest, Message: "id is required"})
		return
	}
	w.mu.Lock()
	_, taken := w.subs[frame.ID]
	w.mu.Unlock()
	if taken {
		w.send(ServerFrame{Type: FrameError, ID: frame.ID, Code: CodeConflict, Message: "subscription id already in use"})
		return
	}

	sub, err := w.chat.Subscribe(w.session.Context(), w.session, frame.Channel)
	if err != nil {
		w.send(ServerFrame{Type: FrameError, ID: frame.ID, Code: ErrorCode(err), Message: errorText(err)})
		return
	}
	w.mu.Lock()
	w.subs[frame.ID] = sub
	w.mu.Unlock()

	w.send(ServerFrame{Type: FrameSubscribed, ID: frame.ID, Channel: frame.Channel})
	w.pumps.Add(1)
	go w.pump(frame, sub)
}

// unsubscribe ends the subscription named by id, or every subscription on channel when
// only the channel is given. Each ended subscription reports complete from its pump.
func (w *wsConn) unsubscribe(frame ClientFrame) {
	if frame.ID == "" && frame.Channel != "" {
		if err := w.chat.Unsubscribe(w.session.Context(), w.session, frame.Channel); err != nil {
			w.send(ServerFrame{Type: FrameError, Channel: frame.Channel, Code: ErrorCode(err), Message: errorText(err)})
		}
		return
	}
	w.mu.Lock()
	sub, ok := w.subs[frame.ID]
	w.mu.Unlock()
	if !ok {
		w.send(ServerFrame{Type: FrameError, ID: frame.ID, Code: CodeNotFound, Message: "no such subscription"})
		return
	}
	sub.Close()
}

// pump forwards one subscription's messages until its stream ends, then reports why.
func (w *wsConn) pump(frame ClientFrame, sub *hub.Subscription) {
	defer w.pumps.Done()
	for msg := range sub.Messages() {
		w.send(ServerFrame{Type: FrameMessage, ID: frame.ID, Channel: frame.Channel, Message: w.chat.View(msg)})
	}

	w.mu.Lock()
	delete(w.subs, frame.ID)
	w.mu.Unlock()

	if w.session.Closed() {
		return
	}
	if errors.Is(sub.Err(), hub.ErrLagged) {
		w.send(ServerFrame{Type: FrameError, ID: frame.ID, Code: CodeLagged, Message: "subscriber fell behind"})
	}
	w.send(ServerFrame{Type: FrameComplete, ID: frame.ID})
}

// ErrorCode maps an error to the code of an error frame.
func ErrorCode(err error) string {
	switch {
	case errdefs.IsUnauthorized(err):
		return CodeUnauthenticated
	case errdefs.IsNotFound(err):
		return CodeNotFound
	case errdefs.IsInvalidArgument(err):
		return CodeBadRequest
	case errdefs.IsAlreadyExists(err):
		return CodeConflict
	case errdefs.IsUnavailable(err):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

func errorText(err error) string {
	if ErrorCode(err) == CodeInternal {
		return http.StatusText(http.StatusInternalServerError)
	}
	return err.Error()
}
