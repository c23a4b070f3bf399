package handler

import (
	"context"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/application"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/platform/response"
)

const (
	maxMessageBytes = 4 << 10
	writeWait       = 10 * time.Second
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// WebSocketHandler upgrades observer connections and feeds their messages
// to the session they joined.
type WebSocketHandler struct {
	registry *application.Registry
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(registry *application.Registry, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Same policy as the CORS middleware: any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// RegisterRoutes registers the WebSocket endpoints.
func (h *WebSocketHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ws/location", h.Location)
	r.GET("/ws/sessions/:id", h.Session)
}

// Location handles /ws/location, the shared default session.
func (h *WebSocketHandler) Location(c *gin.Context) {
	h.serve(c, application.DefaultSessionID)
}

// Session handles /ws/sessions/:id.
func (h *WebSocketHandler) Session(c *gin.Context) {
	id := c.Param("id")
	if !sessionIDPattern.MatchString(id) {
		response.BadRequest(c, "invalid session id")
		return
	}
	h.serve(c, id)
}

func (h *WebSocketHandler) serve(c *gin.Context, sessionID string) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newWSConn(ws)
	log := h.logger.With(zap.String("session_id", sessionID), zap.String("conn_id", conn.ID()))

	svc, err := h.registry.Connect(sessionID, conn)
	if err != nil {
		log.Warn("rejecting websocket connection", zap.Error(err))
		_ = conn.Close()
		return
	}
	defer h.registry.Disconnect(sessionID, conn)
	defer func() { _ = conn.Close() }()

	log.Info("websocket connected")
	ws.SetReadLimit(maxMessageBytes)
	ctx := c.Request.Context()
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			log.Info("websocket disconnected")
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		svc.HandleMessage(ctx, conn, data)
	}
}

// wsConn adapts a gorilla connection to hub.Conn. gorilla allows one
// concurrent data writer, so Send is serialized; WriteControl and Close
// are safe alongside it.
type wsConn struct {
	id        string
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{id: uuid.NewString(), ws: ws}
}

func (c *wsConn) ID() string {
	return c.id
}

// Send writes payload as one text frame, bounded by ctx's deadline.
func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
