package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go-direct-chat/internal/apperr"
	"go-direct-chat/internal/codec"
	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/mocks"
	"go-direct-chat/internal/presence"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func testSettings() Settings {
	return Settings{
		WriteWait:      time.Second,
		PongWait:       5 * time.Second,
		PingPeriod:     4500 * time.Millisecond,
		MaxMessageSize: 4096,
		SendBufferSize: 16,
		RetryCount:     1,
		RetryInterval:  5 * time.Millisecond,
	}
}

// eventRecorder 记录连接事件
type eventRecorder struct {
	mu           sync.Mutex
	connected    []uint
	disconnected []uint
}

func (r *eventRecorder) HandleUserConnected(userID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, userID)
}

func (r *eventRecorder) HandleUserDisconnected(userID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, userID)
}

func (r *eventRecorder) snapshot() (connected, disconnected []uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.connected...), append([]uint(nil), r.disconnected...)
}

type inbound struct {
	senderID uint
	msg      *codec.SendMessage
}

// recordingHandler 记录收到的消息
type recordingHandler chan inbound

func (h recordingHandler) HandleMessage(_ context.Context, sender interfaces.Client, msg *codec.SendMessage) {
	h <- inbound{senderID: sender.GetUserID(), msg: msg}
}

type testEnv struct {
	manager  *ConnectionManager
	registry *presence.Registry
	events   *eventRecorder
	handler  recordingHandler
	verifier *mocks.MockIdentityVerifier
}

func newTestEnv(t *testing.T, settings Settings) *testEnv {
	env := &testEnv{
		registry: presence.NewRegistry(),
		events:   &eventRecorder{},
		handler:  make(recordingHandler, 16),
		verifier: mocks.NewMockIdentityVerifier(gomock.NewController(t)),
	}
	env.manager = NewConnectionManager(env.registry, env.verifier, codec.JSONCodec{}, settings)
	env.manager.SetEventHandler(env.events)
	env.manager.SetMessageHandler(env.handler)
	return env
}

// 测试服务器设置
func setupTestServer(t *testing.T, manager *ConnectionManager) string {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.GET("/ws", func(c *gin.Context) {
		creds := interfaces.Credentials{Token: c.Query("token")}
		client, err := manager.Connect(c.Request.Context(), creds, func() (Conn, error) {
			conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
			if err != nil {
				return nil, err
			}
			return conn, nil
		})
		if err != nil {
			if apperr.IsAuthError(err) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			}
			return
		}
		manager.Serve(context.Background(), client)
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	// 将 http:// 替换为 ws://
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

// 创建WebSocket客户端连接
func connectWebSocket(t *testing.T, url, token string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err, "Failed to connect to WebSocket server")
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) *codec.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)
	env, err := codec.JSONCodec{}.Decode(data)
	require.NoError(t, err)
	return env
}

func TestWebSocket_AuthFailureNeverRegisters(t *testing.T) {
	env := newTestEnv(t, testSettings())
	env.verifier.EXPECT().Authenticate(gomock.Any(), interfaces.Credentials{Token: "bad"}).
		Return(uint(0), &apperr.AuthError{Err: apperr.ErrUnauthenticated})
	url := setupTestServer(t, env.manager)

	conn, resp, err := websocket.DefaultDialer.Dial(url+"?token=bad", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Nil(t, conn)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Empty(t, env.registry.OnlineUsers())
	assert.Empty(t, env.manager.OpenClients())
	connected, _ := env.events.snapshot()
	assert.Empty(t, connected, "a rejected handshake triggers no presence change")
}

func TestWebSocket_ConnectAndDisconnect(t *testing.T) {
	env := newTestEnv(t, testSettings())
	env.verifier.EXPECT().Authenticate(gomock.Any(), interfaces.Credentials{Token: "alice"}).Return(uint(1), nil).Times(2)
	url := setupTestServer(t, env.manager)

	phone := connectWebSocket(t, url, "alice")
	laptop := connectWebSocket(t, url, "alice")

	require.Eventually(t, func() bool { return len(env.registry.LiveHandles(1)) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, env.manager.OpenClients(), 2)

	require.NoError(t, phone.Close())
	require.Eventually(t, func() bool { return len(env.registry.LiveHandles(1)) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, env.registry.IsOnline(1), "one device left")

	require.NoError(t, laptop.Close())
	require.Eventually(t, func() bool { return !env.registry.IsOnline(1) }, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, disconnected := env.events.snapshot()
		return len(disconnected) == 2
	}, 2*time.Second, 10*time.Millisecond)
	connected, _ := env.events.snapshot()
	assert.Equal(t, []uint{1, 1}, connected)
	assert.Empty(t, env.manager.OpenClients())
}

func TestWebSocket_InboundMessageReachesHandler(t *testing.T) {
	env := newTestEnv(t, testSettings())
	env.verifier.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(uint(1), nil)
	url := setupTestServer(t, env.manager)

	conn := connectWebSocket(t, url, "alice")
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"send_message","client_msg_id":"c1","receiver_id":2,"text":"  hello  "}`)))

	select {
	case got := <-env.handler:
		assert.Equal(t, uint(1), got.senderID)
		assert.Equal(t, uint64(2), got.msg.ReceiverID)
		assert.Equal(t, "hello", got.msg.Text)
		assert.Equal(t, "c1", got.msg.ClientMsgID)
	case <-time.After(2 * time.Second):
		t.Fatal("message never reached the handler")
	}
}

func TestWebSocket_InvalidFramesGetErrorEvent(t *testing.T) {
	env := newTestEnv(t, testSettings())
	env.verifier.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(uint(1), nil)
	url := setupTestServer(t, env.manager)

	conn := connectWebSocket(t, url, "alice")
	defer conn.Close()

	tests := []struct {
		name  string
		frame string
		msgID string
	}{
		{name: "malformed json", frame: `{"type":`},
		{name: "send to self", frame: `{"client_msg_id":"self","receiver_id":1,"text":"me"}`, msgID: "self"},
		{name: "empty content", frame: `{"client_msg_id":"empty","receiver_id":2}`, msgID: "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)))
			got := readEnvelope(t, conn)
			assert.Equal(t, codec.EventError, got.Type)
			assert.Equal(t, codec.CodeInvalidMessage, got.Code)
			assert.Equal(t, tt.msgID, got.ClientMsgID)
		})
	}
	assert.Empty(t, env.handler)
	assert.True(t, env.registry.IsOnline(1), "bad frames do not close the connection")
}

func TestWebSocket_ServerPushReachesClient(t *testing.T) {
	env := newTestEnv(t, testSettings())
	env.verifier.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(uint(2), nil)
	url := setupTestServer(t, env.manager)

	conn := connectWebSocket(t, url, "bob")
	defer conn.Close()
	require.Eventually(t, func() bool { return env.registry.IsOnline(2) }, 2*time.Second, 10*time.Millisecond)

	data, err := codec.JSONCodec{}.Encode(codec.PresenceEvent([]uint{1, 2}))
	require.NoError(t, err)
	for _, h := range env.registry.LiveHandles(2) {
		require.NoError(t, h.QueueBytes(data))
	}

	got := readEnvelope(t, conn)
	assert.Equal(t, codec.EventPresence, got.Type)
	assert.Equal(t, []uint64{1, 2}, got.OnlineUserIDs)
}

func TestWebSocket_ServerSendsPings(t *testing.T) {
	settings := testSettings()
	settings.PongWait = 400 * time.Millisecond
	settings.PingPeriod = 100 * time.Millisecond
	env := newTestEnv(t, settings)
	env.verifier.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(uint(1), nil)
	url := setupTestServer(t, env.manager)

	conn := connectWebSocket(t, url, "alice")
	defer conn.Close()

	pinged := make(chan struct{}, 8)
	conn.SetPingHandler(func(appData string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-pinged:
		case <-time.After(2 * time.Second):
			t.Fatal("no ping from server")
		}
	}
	// pongs keep the connection alive past PongWait
	assert.True(t, env.registry.IsOnline(1))
}

func TestWebSocket_ShutdownSendsNormalClosure(t *testing.T) {
	env := newTestEnv(t, testSettings())
	env.verifier.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(uint(1), nil)
	url := setupTestServer(t, env.manager)

	conn := connectWebSocket(t, url, "alice")
	defer conn.Close()
	require.Eventually(t, func() bool { return env.registry.IsOnline(1) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.manager.Shutdown(context.Background()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
