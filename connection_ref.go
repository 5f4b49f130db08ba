package tcpkit

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConnectionRef lets application code hold a reference to a connection outside the goroutine that owns it
// (e.g. to fan a message out to every connected client from a timer). A *Connection's arena slice and ops are
// recycled the moment it disconnects, so storing the *Connection itself risks racing its teardown; ConnectionRef
// nils out its reference under the disconnect path instead, turning that race into a clean io.EOF.
//
// Grounded on tinytcp's SocketRef (socket_ref.go) and directly implementing design note §9's prescription:
// "the connection holds an opaque identity plus a thin submission handle ... never a back-pointer to the
// full server."
type ConnectionRef struct {
	identity uuid.UUID
	c        *Connection
	m        sync.RWMutex
}

// NewConnectionRef wraps conn in a ConnectionRef that outlives its handler invocation.
func NewConnectionRef(conn *Connection) *ConnectionRef {
	ref := &ConnectionRef{identity: conn.Identity, c: conn}

	conn.onDisconnectRefs = append(conn.onDisconnectRefs, ref.invalidate)
	return ref
}

// Identity returns the wrapped connection's identity, valid even after disconnection.
func (r *ConnectionRef) Identity() uuid.UUID {
	return r.identity
}

// Send submits packet for writing, only if the connection hasn't disconnected yet.
func (r *ConnectionRef) Send(packet *PacketStream) error {
	r.m.RLock()
	defer r.m.RUnlock()

	if r.c == nil {
		return io.EOF
	}

	return r.c.Send(packet)
}

// RemoteAddress returns the remote address, or "" if the connection has disconnected.
func (r *ConnectionRef) RemoteAddress() string {
	r.m.RLock()
	defer r.m.RUnlock()

	if r.c == nil {
		return ""
	}

	return r.c.RemoteAddress()
}

// Unwrap returns the underlying net.Conn, or nil if the connection has disconnected.
func (r *ConnectionRef) Unwrap() net.Conn {
	r.m.RLock()
	defer r.m.RUnlock()

	if r.c == nil {
		return nil
	}

	return r.c.Unwrap()
}

// ConnectedAt returns the exact moment the connection was accepted, or the Unix epoch (time.UnixMilli(0)) if it
// has disconnected.
func (r *ConnectionRef) ConnectedAt() time.Time {
	r.m.RLock()
	defer r.m.RUnlock()

	if r.c == nil {
		return time.UnixMilli(0)
	}

	return r.c.ConnectedAt()
}

func (r *ConnectionRef) invalidate() {
	r.m.Lock()
	defer r.m.Unlock()

	r.c = nil
}
