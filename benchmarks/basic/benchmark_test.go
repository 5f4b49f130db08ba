package basic

import (
	"net"
	"testing"

	"github.com/tcpkit/tcpkit"
)

var payload = preparePayload(1024)

func BenchmarkSingleClient(b *testing.B) {
	listener := newMockListener()
	server, client := createEchoServer(listener)
	defer server.Stop()

	buffer := make([]byte, 4096)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := client.Write(payload); err != nil {
			break
		}

		if _, err := client.Read(buffer); err != nil {
			continue
		}
	}
}

func BenchmarkConcurrentClients(b *testing.B) {
	listener := newMockListener()
	server, _ := createEchoServer(listener)
	defer server.Stop()

	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		client := listener.Connect()
		buffer := make([]byte, 4096)

		for pb.Next() {
			if _, err := client.Write(payload); err != nil {
				break
			}

			if _, err := client.Read(buffer); err != nil {
				continue
			}
		}
	})
}

type echoHandler struct {
	conn *tcpkit.Connection
}

func (h *echoHandler) OnMessageReceived(packet *tcpkit.PacketStream) {
	reply := tcpkit.NewPacketStream()
	defer reply.Dispose()

	message, err := packet.ReadString()
	if err != nil {
		return
	}

	_ = reply.WriteString(message)
	_ = h.conn.Send(reply)
}

func createEchoServer(listener *mockListener) (*tcpkit.Server[*echoHandler], net.Conn) {
	server := tcpkit.NewServer(&tcpkit.ServerConfig{
		Port:                       1,
		MaximumNumberOfConnections: 256,
		BufferSize:                 8192,
	}, func(conn *tcpkit.Connection) *echoHandler {
		return &echoHandler{conn: conn}
	})
	server.SetListener(listener)

	ch := make(chan struct{})
	server.OnStart(func() {
		ch <- struct{}{}
	})

	go func() {
		_ = server.Start()
	}()

	<-ch

	return server, listener.Connect()
}

func preparePayload(size int) []byte {
	packet := tcpkit.NewPacketStream()
	defer packet.Dispose()

	message := make([]byte, size)
	for i := range message {
		message[i] = byte('a' + i%26)
	}

	_ = packet.WriteString(string(message))

	buf := packet.Buffer()
	out := make([]byte, len(buf))
	copy(out, buf)
	return out
}
