package tcpkit

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// connectionRegistry maps connection identity to *Connection. Readers are unsynchronized, writers (register,
// remove) go through sync.Map's atomic insert/remove (spec §5 "Shared resources"). sync.Map is the standard
// library's own answer to exactly this discipline; none of the retrieval pack's third-party deps offer a
// concurrent map primitive that fits better, so this one component is built on stdlib by design (see DESIGN.md).
// Grounded on tinytcp's socketsList (sockets_list.go), re-keyed by 128-bit identity instead of list position.
type connectionRegistry struct {
	connections sync.Map
	size        int32
	maxSize     int32
}

func newConnectionRegistry(maxSize int) *connectionRegistry {
	return &connectionRegistry{maxSize: int32(maxSize)}
}

// register adds conn to the registry. Returns ErrDuplicateIdentity if conn.Identity already exists — a fatal
// invariant breach (spec §4.F) since identities are framework-generated and collisions should be impossible.
func (r *connectionRegistry) register(conn *Connection) error {
	if atomic.LoadInt32(&r.size) >= r.maxSize {
		return ErrExhausted
	}

	if _, loaded := r.connections.LoadOrStore(conn.Identity, conn); loaded {
		return ErrDuplicateIdentity
	}

	atomic.AddInt32(&r.size, 1)
	return nil
}

// remove drops conn.Identity from the registry, returning ErrClientNotFound if it wasn't present.
func (r *connectionRegistry) remove(identity uuid.UUID) (*Connection, error) {
	value, loaded := r.connections.LoadAndDelete(identity)
	if !loaded {
		return nil, ErrClientNotFound
	}

	atomic.AddInt32(&r.size, -1)
	return value.(*Connection), nil
}

func (r *connectionRegistry) get(identity uuid.UUID) (*Connection, bool) {
	value, ok := r.connections.Load(identity)
	if !ok {
		return nil, false
	}

	return value.(*Connection), true
}

// len returns the current number of registered connections.
func (r *connectionRegistry) len() int {
	return int(atomic.LoadInt32(&r.size))
}

// iterate calls fn for every registered connection. fn must not block for long: it runs while other goroutines
// may be concurrently registering or removing connections.
func (r *connectionRegistry) iterate(fn func(*Connection)) {
	r.connections.Range(func(_, value any) bool {
		fn(value.(*Connection))
		return true
	})
}

// clients returns a snapshot slice of all registered connections.
func (r *connectionRegistry) clients() []*Connection {
	var out []*Connection
	r.iterate(func(c *Connection) {
		out = append(out, c)
	})
	return out
}
