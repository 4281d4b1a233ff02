package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/domain/app"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/tracing"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	eventBuffer  = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// Message is one frame exchanged on the stream
type Message struct {
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	Event     *app.StateEvent `json:"event,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Handler manages WebSocket connections
type Handler struct {
	hub     *app.Hub
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *app.Hub, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:     hub,
		logger:  logger,
		metrics: metrics,
	}
}

// HandleConnection upgrades the request and streams events until the
// client goes away
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncStreamConnections()
	defer h.metrics.DecStreamConnections()

	process := c.Query("process")
	subID, events, cancel := h.hub.Subscribe(eventBuffer)
	defer cancel()
	h.logger.Debug("stream opened",
		zap.String("subscriber", subID),
		zap.String("process", process),
		tracing.Field(c.Request.Context()),
	)

	if err := h.send(conn, Message{Type: "system", Message: "connected"}); err != nil {
		return
	}

	replies := make(chan Message, 1)
	done := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go h.readLoop(conn, replies, done, stop)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			h.logger.Debug("stream closed", zap.String("subscriber", subID))
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if process != "" && e.Process.Name != process {
				continue
			}
			if err := h.send(conn, Message{Type: "event", Event: &e}); err != nil {
				return
			}
		case msg := <-replies:
			if err := h.send(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop handles client frames. Replies go through the writer loop
// since a connection supports one concurrent writer.
func (h *Handler) readLoop(conn *websocket.Conn, replies chan<- Message, done chan<- struct{}, stop <-chan struct{}) {
	defer close(done)

	reply := func(msg Message) bool {
		select {
		case replies <- msg:
			return true
		case <-stop:
			return false
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		out := Message{Type: "pong"}
		if err := sonic.Unmarshal(data, &msg); err != nil {
			out = Message{Type: "error", Message: "malformed message"}
		} else if msg.Type != "ping" {
			out = Message{Type: "error", Message: "unknown message type"}
		}
		if !reply(out) {
			return
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, msg Message) error {
	msg.Timestamp = time.Now().Unix()
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
