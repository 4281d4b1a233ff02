package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/domain/app"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

func dial(t *testing.T, hub *app.Hub, metrics *monitoring.Metrics, query string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/stream", NewHandler(hub, nil, metrics).HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	welcome := read(t, conn)
	require.Equal(t, "system", welcome.Type)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, sonic.Unmarshal(data, &msg))
	return msg
}

func TestStreamDeliversEvents(t *testing.T) {
	hub := app.NewHub(nil)
	metrics := monitoring.NewMetrics()
	conn := dial(t, hub, metrics, "")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StreamConnections))

	hub.Publish(app.StateEvent{
		Kind:    app.EventCacheStateChanged,
		Process: types.ProcessInfo{Name: "mail", State: types.StateCached},
	})

	msg := read(t, conn)
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, app.EventCacheStateChanged, msg.Event.Kind)
	assert.Equal(t, types.StateCached, msg.Event.Process.State)
}

func TestStreamFiltersByProcess(t *testing.T) {
	hub := app.NewHub(nil)
	conn := dial(t, hub, nil, "?process=notes")

	hub.Publish(app.StateEvent{Kind: app.EventStateChanged, Process: types.ProcessInfo{Name: "mail"}})
	hub.Publish(app.StateEvent{Kind: app.EventProcessDied, Process: types.ProcessInfo{Name: "notes"}})

	msg := read(t, conn)
	require.NotNil(t, msg.Event)
	assert.Equal(t, "notes", msg.Event.Process.Name)
	assert.Equal(t, app.EventProcessDied, msg.Event.Kind)
}

func TestStreamPingPong(t *testing.T) {
	conn := dial(t, app.NewHub(nil), nil, "")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, "pong", read(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"launch"}`)))
	msg := read(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "unknown message type", msg.Message)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, "malformed message", read(t, conn).Message)
}

func TestStreamUnsubscribesOnClose(t *testing.T) {
	hub := app.NewHub(nil)
	conn := dial(t, hub, nil, "")
	require.Equal(t, 1, hub.Subscribers())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return hub.Subscribers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
