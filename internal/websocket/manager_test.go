package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-direct-chat/internal/apperr"
	"go-direct-chat/internal/codec"
	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/service"
	"go-direct-chat/pkg/config"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeConn 阻塞读直到关闭
type fakeConn struct {
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32

	mu     sync.Mutex
	writes [][]byte
	ops    []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("use of closed connection")
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if messageType == websocket.CloseMessage {
		c.ops = append(c.ops, "close frame")
	}
	return nil
}

func (c *fakeConn) SetReadLimit(int64) {}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.ops = append(c.ops, "close")
	c.mu.Unlock()
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) opsSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

func connectFake(t *testing.T, env *testEnv, userID uint) (*Client, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	env.verifier.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(userID, nil)
	client, err := env.manager.Connect(context.Background(), interfaces.Credentials{Token: "t"}, func() (Conn, error) {
		return conn, nil
	})
	require.NoError(t, err)
	return client, conn
}

func TestConnectionManager_ConnectOpensAndRegisters(t *testing.T) {
	env := newTestEnv(t, testSettings())
	client, _ := connectFake(t, env, 7)

	assert.Equal(t, StateOpen, client.State())
	assert.Equal(t, uint(7), client.GetUserID())
	assert.NotEmpty(t, client.GetID())
	assert.True(t, env.registry.IsOnline(7))
	assert.Len(t, env.manager.OpenClients(), 1)
}

func TestConnectionManager_AuthFailureSkipsUpgrade(t *testing.T) {
	env := newTestEnv(t, testSettings())
	env.verifier.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(uint(0), errors.New("token expired"))

	upgraded := false
	client, err := env.manager.Connect(context.Background(), interfaces.Credentials{}, func() (Conn, error) {
		upgraded = true
		return newFakeConn(), nil
	})

	assert.Nil(t, client)
	assert.True(t, apperr.IsAuthError(err), "plain verifier errors are wrapped")
	assert.False(t, upgraded)
	assert.Zero(t, env.registry.ConnectionCount())
}

func TestConnectionManager_UpgradeFailure(t *testing.T) {
	env := newTestEnv(t, testSettings())
	env.verifier.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(uint(1), nil)

	_, err := env.manager.Connect(context.Background(), interfaces.Credentials{}, func() (Conn, error) {
		return nil, errors.New("bad upgrade")
	})

	require.Error(t, err)
	assert.False(t, apperr.IsAuthError(err))
	assert.False(t, env.registry.IsOnline(1))
	connected, _ := env.events.snapshot()
	assert.Empty(t, connected)
}

func TestConnectionManager_DisconnectRunsOnce(t *testing.T) {
	env := newTestEnv(t, testSettings())
	client, conn := connectFake(t, env, 3)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.manager.Disconnect(client)
		}()
	}
	wg.Wait()

	_, disconnected := env.events.snapshot()
	assert.Equal(t, []uint{3}, disconnected)
	assert.Equal(t, StateClosed, client.State())
	assert.False(t, env.registry.IsOnline(3))
	assert.Empty(t, env.manager.OpenClients())
	assert.EqualValues(t, 1, conn.closes.Load())
	assert.Equal(t, []string{"close frame", "close"}, conn.opsSnapshot(), "peer gets a normal closure before the socket drops")
	assert.ErrorIs(t, client.QueueBytes([]byte("late")), apperr.ErrClientClosed)
}

func TestConnectionManager_ReadEndTearsDown(t *testing.T) {
	env := newTestEnv(t, testSettings())
	client, conn := connectFake(t, env, 4)
	env.manager.Serve(context.Background(), client)

	_ = conn.Close()

	require.Eventually(t, func() bool { return client.State() == StateClosed }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, env.registry.IsOnline(4))
}

func TestConnectionManager_Shutdown(t *testing.T) {
	env := newTestEnv(t, testSettings())
	a, _ := connectFake(t, env, 1)
	b, _ := connectFake(t, env, 2)

	require.NoError(t, env.manager.Shutdown(context.Background()))

	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, StateClosed, b.State())
	assert.Empty(t, env.registry.OnlineUsers())
}

// gatedEvents holds HandleUserConnected open until released.
type gatedEvents struct {
	entered chan struct{}
	release chan struct{}

	mu  sync.Mutex
	log []string
}

func (g *gatedEvents) HandleUserConnected(uint) {
	close(g.entered)
	<-g.release
	g.record("connected")
}

func (g *gatedEvents) HandleUserDisconnected(uint) { g.record("disconnected") }

func (g *gatedEvents) record(event string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log = append(g.log, event)
}

func TestConnectionManager_ShutdownDuringConnectWaitsForOpen(t *testing.T) {
	env := newTestEnv(t, testSettings())
	events := &gatedEvents{entered: make(chan struct{}), release: make(chan struct{})}
	env.manager.SetEventHandler(events)
	env.verifier.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(uint(5), nil)

	conn := newFakeConn()
	connected := make(chan *Client, 1)
	go func() {
		client, err := env.manager.Connect(context.Background(), interfaces.Credentials{Token: "t"}, func() (Conn, error) {
			return conn, nil
		})
		assert.NoError(t, err)
		connected <- client
	}()
	<-events.entered

	var shutDown atomic.Bool
	go func() {
		assert.NoError(t, env.manager.Shutdown(context.Background()))
		shutDown.Store(true)
	}()
	assert.Never(t, shutDown.Load, 50*time.Millisecond, 5*time.Millisecond, "teardown waits for the connect to finish")

	close(events.release)
	client := <-connected
	require.Eventually(t, shutDown.Load, 2*time.Second, 5*time.Millisecond)

	events.mu.Lock()
	assert.Equal(t, []string{"connected", "disconnected"}, events.log)
	events.mu.Unlock()
	assert.Equal(t, StateClosed, client.State())
	assert.False(t, env.registry.IsOnline(5))
	assert.Empty(t, env.manager.OpenClients())
	assert.Equal(t, []string{"close frame", "close"}, conn.opsSnapshot())
}

func TestConnectionManager_DisconnectBroadcastsRemainingRoster(t *testing.T) {
	env := newTestEnv(t, testSettings())
	broadcaster := service.NewPresenceBroadcaster(env.registry, env.manager, codec.JSONCodec{})
	env.manager.SetEventHandler(broadcaster)

	hA1, _ := connectFake(t, env, 1)
	hB1, _ := connectFake(t, env, 2)
	hB2, _ := connectFake(t, env, 2)

	env.manager.Disconnect(hB1)

	open := env.manager.OpenClients()
	assert.Len(t, open, 2)
	assert.NotContains(t, open, interfaces.Client(hB1))
	assert.Equal(t, []uint{1, 2}, env.registry.OnlineUsers())

	// pending notifications coalesce into a single broadcast of the current roster
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go broadcaster.Run(ctx)

	for _, h := range []*Client{hA1, hB2} {
		select {
		case data := <-h.Send:
			got, err := codec.JSONCodec{}.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, codec.EventPresence, got.Type)
			assert.Equal(t, []uint64{1, 2}, got.OnlineUserIDs, "connection %s", h.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("no presence frame for connection %s", h.ID)
		}
	}
	_, ok := <-hB1.Send
	assert.False(t, ok, "a closed handle gets nothing")
}

func TestClient_QueueBytesFullBufferClosesConnection(t *testing.T) {
	settings := testSettings()
	settings.SendBufferSize = 1
	env := newTestEnv(t, settings)
	client, conn := connectFake(t, env, 1)

	require.NoError(t, client.QueueBytes([]byte("first")))
	err := client.QueueBytes([]byte("second"))

	assert.ErrorIs(t, err, apperr.ErrSendBufferFull)
	assert.GreaterOrEqual(t, conn.closes.Load(), int32(1))
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c := newClient(nil, 1, testSettings())
	assert.NotPanics(t, func() {
		c.Close()
		c.Close()
	})
	assert.ErrorIs(t, c.QueueBytes([]byte("x")), apperr.ErrClientClosed)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closed", StateClosed.String())
}

func TestSettingsFromConfig_Defaults(t *testing.T) {
	s := SettingsFromConfig(config.WebSocketConfig{MessageRetryCount: -1})

	assert.Equal(t, 10*time.Second, s.WriteWait)
	assert.Equal(t, 60*time.Second, s.PongWait)
	assert.Equal(t, 54*time.Second, s.PingPeriod)
	assert.Equal(t, int64(64*1024), s.MaxMessageSize)
	assert.Equal(t, 256, s.SendBufferSize)
	assert.Equal(t, 3, s.RetryCount)
	assert.Equal(t, 100*time.Millisecond, s.RetryInterval)
}
