package tcpkit

import (
	"net"
)

// Client is a TCP client that reuses Connection's framing and send path, so wire behavior is identical to what
// a Server-side connection sees on the other end. Grounded on tinytcp's Client (client.go), generalized with
// the arena-backed Connection instead of a bare net.Conn wrapper, and rid of its TLS dial variant (Non-goal).
type Client struct {
	conn *Connection

	arena    *bufferArena
	readPool *opPool
	logger   Logger
}

// Dial connects to config.Host:config.Port and returns a Client whose handler is produced by factory.
// The returned Client has already begun its receive loop in a background goroutine.
func Dial[H ConnectionHandler](config *ClientConfig, factory func(*Connection) H) (*Client, error) {
	c := mergeClientConfig(config)

	if err := c.validate(); err != nil {
		return nil, err
	}

	netConn, err := net.Dial("tcp", c.address())
	if err != nil {
		return nil, err
	}

	arena := newBufferArena(c.BufferSize, 1)
	readPool := newOpPool(1)

	slice, err := arena.checkout()
	if err != nil {
		_ = netConn.Close()
		return nil, err
	}

	readOp, err := readPool.pop()
	if err != nil {
		_ = netConn.Close()
		return nil, err
	}
	readOp.kind = opReceive

	conn := newConnection(netConn, c.PacketProcessor, slice, readOp, newWriteOpPool(1), nil)
	handler := factory(conn)
	conn.handler = handler

	client := &Client{conn: conn, arena: arena, readPool: readPool, logger: c.Logger}
	conn.onClose = func(*Connection, CloseReason, error) {
		client.release()
	}

	readOp.owner = conn
	readOp.slice = slice

	if ch, ok := ConnectionHandler(handler).(ConnectedHandler); ok {
		ch.OnConnected()
	}

	client.logger.Infow("client connected", "address", c.address())

	go conn.receiveLoop()

	return client, nil
}

// Send submits packet for writing on the client's connection.
func (c *Client) Send(packet *PacketStream) error {
	return c.conn.Send(packet)
}

// Disconnect closes the connection. Idempotent.
func (c *Client) Disconnect() {
	c.conn.shutdown(CloseReasonClient, nil)
	c.logger.Infow("client disconnected")
}

// Unwrap returns the underlying net.Conn.
func (c *Client) Unwrap() net.Conn {
	return c.conn.Unwrap()
}

// RemoteAddress returns the remote host the client is connected to.
func (c *Client) RemoteAddress() string {
	return c.conn.RemoteAddress()
}

func (c *Client) release() {
	c.conn.release(c.arena, c.readPool)
}
