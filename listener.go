package tcpkit

import (
	"io"
	"net"
	"sync"
)

// Listener is the low-level interface a Server uses to manage its bound socket. TLS is out of scope (explicit
// Non-goal): Listener binds a plain TCP socket only.
type Listener interface {
	io.Closer

	// Listen starts listening on the configured address.
	Listen() error

	// Accept pulls one connection off the accept queue, blocking if none is available.
	Accept() (net.Conn, error)

	// Addr returns the address this listener is bound to.
	Addr() net.Addr
}

// netListener is the default Listener, grounded on tinytcp's netListener (listener.go), minus its TLS branch.
type netListener struct {
	config   *ServerConfig
	listener net.Listener
	m        sync.RWMutex
}

func newListener(config *ServerConfig) Listener {
	return &netListener{config: config}
}

func (l *netListener) Listen() error {
	l.m.Lock()
	defer l.m.Unlock()

	// Backlog is advisory only: net.Listen delegates the accept queue depth to the OS listen() syscall,
	// which net does not expose a knob for.
	socket, err := net.Listen("tcp", l.config.address())
	if err != nil {
		return err
	}

	l.listener = socket
	return nil
}

func (l *netListener) Accept() (net.Conn, error) {
	l.m.RLock()

	if l.listener == nil {
		l.m.RUnlock()
		return nil, io.EOF
	}

	listener := l.listener
	l.m.RUnlock()

	return listener.Accept()
}

func (l *netListener) Addr() net.Addr {
	l.m.RLock()
	defer l.m.RUnlock()

	if l.listener == nil {
		return &net.TCPAddr{}
	}

	return l.listener.Addr()
}

func (l *netListener) Close() error {
	l.m.Lock()
	defer l.m.Unlock()

	if l.listener == nil {
		return nil
	}

	if err := l.listener.Close(); err != nil {
		return err
	}

	l.listener = nil
	return nil
}
