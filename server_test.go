package tcpkit

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testListener struct {
	acceptQueue chan net.Conn
	closed      chan struct{}
	closeOnce   sync.Once
}

func newTestListener() *testListener {
	return &testListener{
		acceptQueue: make(chan net.Conn),
		closed:      make(chan struct{}),
	}
}

func (l *testListener) Listen() error { return nil }

func (l *testListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.acceptQueue:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *testListener) Addr() net.Addr { return &net.TCPAddr{} }

func (l *testListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *testListener) connect() net.Conn {
	client, server := net.Pipe()
	l.acceptQueue <- server
	return client
}

type echoServerHandler struct {
	conn *Connection
}

func (h *echoServerHandler) OnMessageReceived(packet *PacketStream) {
	str, err := packet.ReadString()
	if err != nil {
		return
	}

	reply := NewPacketStream()
	defer reply.Dispose()
	_ = reply.WriteString(str)

	_ = h.conn.Send(reply)
}

func startTestServer(t *testing.T, maxConnections int) (*Server[*echoServerHandler], *testListener) {
	listener := newTestListener()
	server := NewServer(&ServerConfig{
		MaximumNumberOfConnections: maxConnections,
		BufferSize:                 1024,
		TickInterval:                50 * time.Millisecond,
		Port:                        1,
	}, func(conn *Connection) *echoServerHandler {
		return &echoServerHandler{conn: conn}
	})
	server.SetListener(listener)

	started := make(chan struct{})
	server.OnStart(func() { close(started) })

	go func() {
		_ = server.Start()
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("server should have started")
	}

	return server, listener
}

func readFramedString(t *testing.T, conn net.Conn) string {
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	assert.Nil(t, err, "read should succeed")
	assert.True(t, n >= 4, "frame should at least contain the header")

	view := WrapPacketStream(buf[4:n])
	defer view.Dispose()

	str, err := view.ReadString()
	assert.Nil(t, err, "decoding the payload should succeed")
	return str
}

func TestServerEchoEndToEnd(t *testing.T) {
	// given
	server, listener := startTestServer(t, 4)
	defer server.Stop()

	client := listener.connect()
	defer client.Close()

	packet := NewPacketStream()
	_ = packet.WriteString("hello")

	// when
	_, err := client.Write(packet.Buffer())
	packet.Dispose()
	assert.Nil(t, err, "client write should succeed")

	// then
	assert.Equal(t, "hello", readFramedString(t, client), "server should echo back the same payload")
}

func TestServerMaxConnectionsRejectsFifthClientWithoutLeaking(t *testing.T) {
	// given
	server, listener := startTestServer(t, 4)
	defer server.Stop()

	var clients []net.Conn
	for i := 0; i < 4; i++ {
		clients = append(clients, listener.connect())
	}
	defer func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}()

	// when: a fifth client succeeds at the TCP layer but the registry is full
	fifth := listener.connect()
	defer fifth.Close()

	// then
	buf := make([]byte, 8)
	_ = fifth.SetReadDeadline(time.Now().Add(time.Second))
	_, err := fifth.Read(buf)
	assert.NotNil(t, err, "fifth client should be disconnected by the server")

	assert.Eventually(t, func() bool {
		return server.Metrics().ArenaOutstanding <= 4
	}, time.Second, 10*time.Millisecond, "arena slices should not leak past the connection cap")
}

func TestServerGracefulStopDisconnectsEveryClient(t *testing.T) {
	// given
	server, listener := startTestServer(t, 10)

	var disconnects sync.WaitGroup
	disconnects.Add(10)
	server.OnClientDisconnected(func(*Connection, CloseReason, error) {
		disconnects.Done()
	})

	var clients []net.Conn
	for i := 0; i < 10; i++ {
		clients = append(clients, listener.connect())
	}

	// when
	err := server.Stop()

	// then
	assert.Nil(t, err, "Stop should succeed")

	done := make(chan struct{})
	go func() {
		disconnects.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("every client should have disconnected exactly once")
	}

	// calling Stop again must be a safe no-op
	assert.Nil(t, server.Stop(), "second Stop call should be a no-op")

	for _, c := range clients {
		_ = c.Close()
	}
}

func TestServerOversizeFrameDisconnectsOnlyThatClient(t *testing.T) {
	// given
	server, listener := startTestServer(t, 4)
	defer server.Stop()

	bad := listener.connect()
	defer bad.Close()

	good := listener.connect()
	defer good.Close()

	// the deferred Stop also disconnects the good client; only the first disconnect is counted
	var disconnected sync.WaitGroup
	var firstDisconnect sync.Once
	disconnected.Add(1)
	server.OnClientDisconnected(func(*Connection, CloseReason, error) {
		firstDisconnect.Do(disconnected.Done)
	})

	// when
	header := make([]byte, 4)
	header[0], header[1], header[2], header[3] = 0xFF, 0xFF, 0xFF, 0x00
	_, _ = bad.Write(header)

	done := make(chan struct{})
	go func() {
		disconnected.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("oversize frame should disconnect the offending client")
	}

	// then: the other client is unaffected
	packet := NewPacketStream()
	_ = packet.WriteString("still alive")
	_, err := good.Write(packet.Buffer())
	packet.Dispose()

	assert.Nil(t, err, "the other client's connection should remain usable")
	assert.Equal(t, "still alive", readFramedString(t, good), "the other client should still be served")
}
