package tcpkit

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// serverState enumerates the server's lifecycle: Created -> Running -> Stopping -> Disposed, no reverse
// transitions.
type serverState int32

const (
	serverCreated serverState = iota
	serverRunning
	serverStopping
	serverDisposed
)

// Server accepts TCP connections and runs one receive-loop goroutine per connection, wiring the accept,
// receive and send paths through the buffer arena and op pools, and dispatching to the connection handlers
// produced by factory. Conforms to the Service interface.
//
// Grounded on tinytcp's Server (server.go), generalized over a connection handler factory (design note §9:
// "polymorphism over a capability set") in place of a swappable ForkingStrategy: this framework has exactly
// one forking strategy, goroutine-per-connection.
type Server[H ConnectionHandler] struct {
	config  *ServerConfig
	factory func(*Connection) H

	listener  Listener
	arena     *bufferArena
	readPool  *opPool
	writePool *writeOpPool
	registry  *connectionRegistry
	housekeep *housekeepingJob

	state        int32
	goroutines   int32
	metrics      ServerMetrics
	metricsMutex sync.Mutex
	errorChannel chan error
	runningMutex sync.Mutex
	abortOnce    sync.Once

	metricsUpdateHandler      func(ServerMetrics)
	startHandler              func()
	stopHandler               func()
	clientConnectedHandler    func(*Connection)
	clientDisconnectedHandler func(*Connection, CloseReason, error)
	serverPanicHandler        func(error)
	socketPanicHandler        func(error)
	acceptErrorHandler        func(error)
}

// NewServer returns a new Server. H is the application's per-connection handler type; factory constructs one
// value of H per accepted connection.
func NewServer[H ConnectionHandler](config *ServerConfig, factory func(*Connection) H) *Server[H] {
	c := mergeServerConfig(config)

	return &Server[H]{
		config:       c,
		factory:      factory,
		listener:     newListener(c),
		errorChannel: make(chan error, 1),
	}
}

// Port returns the port used by the underlying listener. Only valid after Start().
func (s *Server[H]) Port() int {
	return resolveListenerPort(s.listener.Addr())
}

// SetListener overrides the default listener. Intended for tests that need to drive the accept loop over an
// in-memory net.Conn pipe instead of a real socket. Has no effect once the server is running.
func (s *Server[H]) SetListener(listener Listener) {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()

	if atomic.LoadInt32(&s.state) != int32(serverCreated) {
		return
	}

	s.listener = listener
}

// Metrics returns the most recently computed aggregate server metrics.
func (s *Server[H]) Metrics() ServerMetrics {
	s.metricsMutex.Lock()
	defer s.metricsMutex.Unlock()

	return s.metrics
}

// Clients returns a snapshot of every currently registered connection.
func (s *Server[H]) Clients() []*Connection {
	if s.registry == nil {
		return nil
	}

	return s.registry.clients()
}

// OnMetricsUpdate sets a handler called every time the server metrics are updated.
func (s *Server[H]) OnMetricsUpdate(handler func(ServerMetrics)) { s.metricsUpdateHandler = handler }

// OnStart sets a handler called once the server has started accepting connections.
func (s *Server[H]) OnStart(handler func()) { s.startHandler = handler }

// OnStop sets a handler called once the server has stopped.
func (s *Server[H]) OnStop(handler func()) { s.stopHandler = handler }

// OnClientConnected sets a handler called for every newly registered connection.
func (s *Server[H]) OnClientConnected(handler func(*Connection)) { s.clientConnectedHandler = handler }

// OnClientDisconnected sets a handler called after a connection is unregistered and its resources released.
func (s *Server[H]) OnClientDisconnected(handler func(*Connection, CloseReason, error)) {
	s.clientDisconnectedHandler = handler
}

// OnAcceptError sets a handler for errors returned by the listener's Accept call.
func (s *Server[H]) OnAcceptError(handler func(error)) { s.acceptErrorHandler = handler }

// OnServerPanic sets a handler for panics inside the server's own background goroutines.
func (s *Server[H]) OnServerPanic(handler func(error)) { s.serverPanicHandler = handler }

// OnSocketPanic sets a handler for panics recovered from a connection's receive-loop goroutine.
func (s *Server[H]) OnSocketPanic(handler func(error)) { s.socketPanicHandler = handler }

// Start validates the configuration, allocates the buffer arena and op pools, binds, and blocks accepting
// connections until Stop() is called. Returns ErrAlreadyRunning if already running.
func (s *Server[H]) Start() error {
	s.runningMutex.Lock()

	if !atomic.CompareAndSwapInt32(&s.state, int32(serverCreated), int32(serverRunning)) {
		s.runningMutex.Unlock()
		return ErrAlreadyRunning
	}

	if err := s.config.validate(); err != nil {
		atomic.StoreInt32(&s.state, int32(serverCreated))
		s.runningMutex.Unlock()
		return err
	}

	if err := s.listener.Listen(); err != nil {
		atomic.StoreInt32(&s.state, int32(serverCreated))
		s.runningMutex.Unlock()
		return err
	}

	s.arena = newBufferArena(s.config.BufferSize, s.config.MaximumNumberOfConnections)
	s.readPool = newOpPool(s.config.MaximumNumberOfConnections)
	s.writePool = newWriteOpPool(s.config.MaximumNumberOfConnections)
	s.registry = newConnectionRegistry(s.config.MaximumNumberOfConnections)

	s.startHousekeeping()

	s.config.Logger.Infow("server started", "address", s.config.address())

	if s.startHandler != nil {
		s.startHandler()
	}

	s.runningMutex.Unlock()

	return s.acceptLoop()
}

// Stop transitions the server to Stopping, closes the listener, and disconnects every registered client.
// Idempotent: a second call is a safe no-op.
func (s *Server[H]) Stop() (err error) {
	if !atomic.CompareAndSwapInt32(&s.state, int32(serverRunning), int32(serverStopping)) {
		return nil
	}

	if s.housekeep != nil {
		s.housekeep.Stop()
	}

	if e := s.listener.Close(); e != nil && !isBrokenPipe(e) {
		err = e
	}

	if s.registry != nil {
		s.registry.iterate(func(conn *Connection) {
			conn.shutdown(CloseReasonServer, nil)
		})
	}

	atomic.StoreInt32(&s.state, int32(serverDisposed))

	s.config.Logger.Infow("server stopped")

	if s.stopHandler != nil {
		s.stopHandler()
	}

	return
}

// Abort immediately stops the server, surfacing e from Start().
func (s *Server[H]) Abort(e error) (err error) {
	s.abortOnce.Do(func() {
		select {
		case s.errorChannel <- e:
		default:
		}

		err = s.Stop()
	})

	return
}

// DisconnectClient removes identity from the registry, disposes its connection, and fires
// OnClientDisconnected. Returns ErrClientNotFound if identity is unknown.
func (s *Server[H]) DisconnectClient(identity uuid.UUID) error {
	conn, ok := s.registry.get(identity)
	if !ok {
		return ErrClientNotFound
	}

	conn.shutdown(CloseReasonServer, nil)
	return nil
}

func (s *Server[H]) acceptLoop() error {
	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			if isBrokenPipe(err) {
				break
			}

			s.config.Logger.Warnw("accept failed", "error", err)

			if s.acceptErrorHandler != nil {
				s.acceptErrorHandler(err)
			}
			continue
		}

		s.handleNewConnection(netConn)
	}

	select {
	case err := <-s.errorChannel:
		return err
	default:
		return nil
	}
}

// handleNewConnection implements the accept completion: reserve an arena slice and a read op, construct the
// connection and its handler, register it, and hand it a receive-loop goroutine. Any failure to acquire a
// pool resource closes the raw TCP connection immediately with no leak of arena slices or op records.
func (s *Server[H]) handleNewConnection(netConn net.Conn) {
	if atomic.LoadInt32(&s.state) != int32(serverRunning) {
		_ = netConn.Close()
		return
	}

	slice, err := s.arena.checkout()
	if err != nil {
		_ = netConn.Close()
		return
	}

	readOp, err := s.readPool.pop()
	if err != nil {
		s.arena.checkin(slice)
		_ = netConn.Close()
		return
	}
	readOp.kind = opReceive

	conn := newConnection(netConn, s.config.PacketProcessor, slice, readOp, s.writePool, nil)
	handler := s.factory(conn)
	conn.handler = handler
	conn.onClose = s.handleConnectionClosed

	readOp.owner = conn
	readOp.slice = slice

	if err := s.registry.register(conn); err != nil {
		s.arena.checkin(slice)
		s.readPool.push(readOp)
		_ = netConn.Close()
		return
	}

	if s.clientConnectedHandler != nil {
		s.clientConnectedHandler(conn)
	}
	if ch, ok := ConnectionHandler(handler).(ConnectedHandler); ok {
		ch.OnConnected()
	}

	s.spawnReceiveLoop(conn)
}

func (s *Server[H]) spawnReceiveLoop(conn *Connection) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.config.Logger.Errorw("recovered from panic in receive loop", "panic", r)

				if s.socketPanicHandler != nil {
					s.socketPanicHandler(fmt.Errorf("%v", r))
				}
				conn.shutdown(CloseReasonServer, fmt.Errorf("%v", r))
			}
			atomic.AddInt32(&s.goroutines, -1)
		}()

		atomic.AddInt32(&s.goroutines, 1)
		conn.receiveLoop()
	}()
}

// handleConnectionClosed is a Connection's onClose callback. It runs exactly once per connection (guarded by
// Connection.closeOnce), so the registry removal and pool release below each run exactly once too.
func (s *Server[H]) handleConnectionClosed(conn *Connection, reason CloseReason, cause error) {
	_, _ = s.registry.remove(conn.Identity)
	conn.release(s.arena, s.readPool)

	if s.clientDisconnectedHandler != nil {
		s.clientDisconnectedHandler(conn, reason, cause)
	}
}

func (s *Server[H]) startHousekeeping() {
	s.housekeep = newHousekeepingJob(s.config.TickInterval, s.updateMetrics, func(err error) {
		s.config.Logger.Errorw("recovered from panic in housekeeping job", "error", err)

		if s.serverPanicHandler != nil {
			s.serverPanicHandler(err)
		}
		_ = s.Abort(err)
	})
	s.housekeep.Start()
}

func (s *Server[H]) updateMetrics() {
	s.metricsMutex.Lock()
	defer s.metricsMutex.Unlock()

	var readsPerInterval, writesPerInterval uint64
	s.registry.iterate(func(conn *Connection) {
		readsPerInterval += conn.reader.update(s.config.TickInterval)
		writesPerInterval += conn.writer.update(s.config.TickInterval)
	})

	s.metrics.TotalRead += readsPerInterval
	s.metrics.TotalWritten += writesPerInterval
	s.metrics.ReadLastSecond = uint64(float64(readsPerInterval) / s.config.TickInterval.Seconds())
	s.metrics.WrittenLastSecond = uint64(float64(writesPerInterval) / s.config.TickInterval.Seconds())
	s.metrics.Connections = s.registry.len()
	s.metrics.Goroutines = int(atomic.LoadInt32(&s.goroutines))
	s.metrics.ArenaOutstanding = s.arena.outstanding()
	s.metrics.ReadOpsOutstanding = s.readPool.outstanding()

	if s.metricsUpdateHandler != nil {
		s.metricsUpdateHandler(s.metrics)
	}
}
