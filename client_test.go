package tcpkit

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clientTestHandler struct {
	received chan string
}

func (h *clientTestHandler) OnMessageReceived(packet *PacketStream) {
	str, err := packet.ReadString()
	if err != nil {
		return
	}
	h.received <- str
}

func TestClientDialFailsOnBadConfiguration(t *testing.T) {
	// given / when
	_, err := Dial(&ClientConfig{Port: -1}, func(*Connection) *clientTestHandler {
		return &clientTestHandler{received: make(chan string, 1)}
	})

	// then
	assert.ErrorIs(t, err, ErrConfiguration, "Dial should validate the configuration before connecting")
}

func TestClientReceivesServerMessages(t *testing.T) {
	// given
	serverListener, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Nil(t, err, "test listener should bind")
	defer serverListener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := serverListener.Accept()
		accepted <- conn
	}()

	host, port := serverListener.Addr().(*net.TCPAddr).IP.String(), serverListener.Addr().(*net.TCPAddr).Port

	handler := &clientTestHandler{received: make(chan string, 1)}

	// when
	client, err := Dial(&ClientConfig{Host: host, Port: port}, func(*Connection) *clientTestHandler {
		return handler
	})
	assert.Nil(t, err, "Dial should succeed against a listening server")
	defer client.Disconnect()

	serverSide := <-accepted
	defer serverSide.Close()

	packet := NewPacketStream()
	_ = packet.WriteString("welcome")
	_, _ = serverSide.Write(packet.Buffer())
	packet.Dispose()

	// then
	select {
	case msg := <-handler.received:
		assert.Equal(t, "welcome", msg, "client should decode the server's message")
	case <-time.After(time.Second):
		t.Fatal("client should have received the server's message")
	}
}
