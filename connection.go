package tcpkit

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ConnectionHandler is the minimal capability a user type must implement to receive framed messages.
// Design note §9 replaces the source's deep inheritance with polymorphism over a capability set: the mandatory
// ConnectionHandler plus the optional capabilities below, checked with a type assertion at the call site.
type ConnectionHandler interface {
	// OnMessageReceived is invoked exactly once per complete inbound frame, in arrival order on that connection.
	OnMessageReceived(packet *PacketStream)
}

// ConnectedHandler is an optional capability invoked once, right after a connection is registered.
type ConnectedHandler interface {
	OnConnected()
}

// DisconnectedHandler is an optional capability invoked once, right before a connection's resources are released.
type DisconnectedHandler interface {
	OnDisconnected()
}

// ConnectionErrorHandler is an optional capability invoked with the socket error kind on abnormal termination.
type ConnectionErrorHandler interface {
	OnError(kind Kind)
}

// Connection represents per-client state: socket handle, identity, receive-assembly cursor, and a send dispatch
// callback. Grounded on tinytcp's Socket (socket.go), generalized with the assembly cursor and arena slice
// required by spec §3, and rid of its server back-pointer per design note §9 (cyclic ownership): a Connection
// only ever holds its arena slice, op pools, and a handler value, never the Server itself.
type Connection struct {
	// Identity is a 128-bit identifier, stable across the connection's lifetime.
	Identity uuid.UUID

	conn       net.Conn
	remoteAddr string
	connectsAt int64

	processor PacketProcessor
	slice     *arenaSlice
	readOp    *op

	dataStart   int
	nextReceive int

	writePool *writeOpPool

	sendMu sync.Mutex

	handler ConnectionHandler

	closeOnce sync.Once
	closed    int32

	onClose          func(*Connection, CloseReason, error)
	onDisconnectRefs []func()

	reader meteredReader
	writer meteredWriter
}

// newConnection wires a freshly accepted net.Conn to its reserved arena slice and read op.
func newConnection(
	conn net.Conn,
	processor PacketProcessor,
	slice *arenaSlice,
	readOp *op,
	writePool *writeOpPool,
	handler ConnectionHandler,
) *Connection {
	c := &Connection{
		Identity:   uuid.New(),
		conn:       conn,
		remoteAddr: parseRemoteAddress(conn),
		connectsAt: time.Now().UTC().UnixMilli(),
		processor:  processor,
		slice:      slice,
		readOp:     readOp,
		writePool:  writePool,
		handler:    handler,
	}
	c.reader.reader = conn
	c.writer.writer = conn

	return c
}

// RemoteAddress returns the remote host of the underlying socket.
func (c *Connection) RemoteAddress() string {
	return c.remoteAddr
}

// ConnectedAt returns the exact moment the connection was accepted.
func (c *Connection) ConnectedAt() time.Time {
	return time.UnixMilli(c.connectsAt)
}

// Metrics returns the connection's own read/write throughput counters (supplemented feature, SPEC_FULL §3).
func (c *Connection) Metrics() ConnectionMetrics {
	return ConnectionMetrics{
		TotalRead:    c.reader.Total(),
		TotalWritten: c.writer.Total(),
	}
}

// Unwrap returns the underlying net.Conn.
func (c *Connection) Unwrap() net.Conn {
	return c.conn
}

func (c *Connection) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Send submits packet for writing. Non-blocking except that it may suspend if the write op pool is drained
// (spec §4.E): the caller's goroutine parks on writeOpPool.acquire until a write op is returned by a previous
// send. Ownership of packet's buffer is the caller's; Send does not dispose it.
func (c *Connection) Send(packet *PacketStream) error {
	if c.isClosed() {
		return io.EOF
	}

	record, err := c.writePool.acquire()
	if err != nil {
		return err
	}
	defer c.writePool.release(record)

	record.kind = opSend
	record.owner = c
	record.sendBytes = packet.Buffer()
	record.sendSent = 0

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	return c.processSend(record)
}

// processSend drains record.sendBytes with a loop rather than recursion (design note §5/§9: synchronous
// completions must be handled by iteration), retrying on partial writes until fully drained or an error occurs.
func (c *Connection) processSend(record *op) error {
	for record.sendSent < len(record.sendBytes) {
		n, err := c.writer.Write(record.sendBytes[record.sendSent:])
		if n > 0 {
			record.sendSent += n
		}
		if err != nil {
			if isBrokenPipe(err) {
				c.shutdown(CloseReasonClient, nil)
				return io.EOF
			}

			c.shutdown(CloseReasonServer, err)
			return err
		}
	}

	return nil
}

// receiveLoop is the per-connection read loop (spec §4.F "Receive loop"), driven by one goroutine, preserving
// the "at most one outstanding receive" invariant by construction. It implements the default framing algorithm
// of spec §4.B directly over the arena slice, reading straight into it. Each complete frame is still handed over
// as a newly allocated PacketStream holding a copy of the payload in a bytebufferpool buffer.
func (c *Connection) receiveLoop() {
	headerSize := c.processor.HeaderSize()
	slice := c.slice.bytes

	for {
		if c.nextReceive >= len(slice) {
			// defensive: compaction below always restores room before the next iteration: unreachable in
			// practice, but guards against a custom PacketProcessor with a pathological HeaderSize.
			c.shutdown(CloseReasonServer, ErrFrameTooLarge)
			return
		}

		n, err := c.reader.Read(slice[c.nextReceive:])
		if err != nil {
			if isBrokenPipe(err) || err == io.EOF {
				c.shutdown(CloseReasonClient, nil)
			} else {
				c.shutdown(CloseReasonServer, err)
			}
			return
		}
		if n == 0 {
			c.shutdown(CloseReasonClient, nil)
			return
		}

		c.nextReceive += n
		totalReceived := c.nextReceive - c.dataStart

		for totalReceived >= headerSize {
			header := slice[c.dataStart : c.dataStart+headerSize]
			messageSize, err := c.processor.GetLength(header)
			if err != nil {
				c.shutdown(CloseReasonServer, err)
				return
			}

			if headerSize+messageSize > len(slice) {
				c.shutdown(CloseReasonServer, ErrFrameTooLarge)
				return
			}

			if totalReceived < headerSize+messageSize {
				break
			}

			payloadStart := c.dataStart + headerSize
			payloadEnd := payloadStart + messageSize
			packet := c.processor.CreatePacket(slice[payloadStart:payloadEnd])

			c.dispatch(packet)

			consumed := headerSize + messageSize
			c.dataStart += consumed
			totalReceived -= consumed
		}

		if totalReceived == 0 {
			c.dataStart = 0
			c.nextReceive = 0
		} else if c.nextReceive == len(slice) {
			copy(slice[0:totalReceived], slice[c.dataStart:c.dataStart+totalReceived])
			c.dataStart = 0
			c.nextReceive = totalReceived
		}
	}
}

// dispatch hands a fully extracted frame to the application handler. Panics inside the handler are caught and
// reported as KindSocket to the handler's OnError, if it has one; they are not logged. The connection stays open
// unless the engine separately detects a framing error.
func (c *Connection) dispatch(packet *PacketStream) {
	defer packet.Dispose()
	defer func() {
		if r := recover(); r != nil {
			if eh, ok := c.handler.(ConnectionErrorHandler); ok {
				eh.OnError(KindSocket)
			}
		}
	}()

	c.handler.OnMessageReceived(packet)
}

// shutdown tears down the socket exactly once and notifies the owning registry via onClose.
// onError is invoked with the socket error kind only on abnormal termination (spec §4.F), i.e. when cause != nil.
func (c *Connection) shutdown(reason CloseReason, cause error) {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.closed, 1)
		_ = c.conn.Close()

		if dh, ok := c.handler.(DisconnectedHandler); ok {
			dh.OnDisconnected()
		}
		if cause != nil {
			if eh, ok := c.handler.(ConnectionErrorHandler); ok {
				eh.OnError(KindSocket)
			}
		}

		for _, invalidate := range c.onDisconnectRefs {
			invalidate()
		}

		if c.onClose != nil {
			c.onClose(c, reason, cause)
		}
	})
}

// release returns the connection's arena slice and read op to their pools. Called from the onClose callback
// (Server.handleConnectionClosed, Client.release) that shutdown runs, conserving spec §8 property 6 (pool conservation).
//
// On an externally-initiated shutdown this runs on the caller's goroutine while receiveLoop's own goroutine
// may still be unwinding from a blocked Read on the same slice; c.conn.Close() above makes that Read return
// without writing, so the slice is not touched again after checkin races with it.
func (c *Connection) release(arena *bufferArena, readPool *opPool) {
	arena.checkin(c.slice)
	readPool.push(c.readOp)
}
