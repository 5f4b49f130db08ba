package tcpkit

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// ServerConfig holds a validated, immutable-after-start configuration for NewServer.
// Invariant (spec §3): BufferSize * MaximumNumberOfConnections bytes are allocated up front by the Buffer Arena.
type ServerConfig struct {
	// Host is the textual interface to bind to ("0.0.0.0" means any interface) (default: "0.0.0.0").
	Host string

	// Port is the TCP port to listen on, 1..65535.
	Port int

	// Backlog is the accept queue depth (default: 100). The default listener does not apply it: it binds with
	// net.Listen, which leaves the queue depth to the OS.
	Backlog int

	// BufferSize is the per-connection receive window in bytes, typically 1024-65536 (default: 1024).
	BufferSize int

	// MaximumNumberOfConnections is the hard cap on concurrently registered connections.
	MaximumNumberOfConnections int

	// TickInterval is the interval used to schedule the background metrics/housekeeping job (default: 1s).
	TickInterval time.Duration

	// PacketProcessor overrides the default length-prefix framing discipline (spec §4.B injection point).
	PacketProcessor PacketProcessor

	// Logger receives diagnostic events. Defaults to a no-op logger.
	Logger Logger
}

// ClientConfig holds configuration for Dial.
type ClientConfig struct {
	// Host is the remote host to connect to.
	Host string

	// Port is the remote port to connect to.
	Port int

	// BufferSize is the client's receive window in bytes (default: 1024).
	BufferSize int

	// PacketProcessor overrides the default length-prefix framing discipline.
	PacketProcessor PacketProcessor

	// Logger receives diagnostic events. Defaults to a no-op logger.
	Logger Logger
}

func mergeServerConfig(provided *ServerConfig) *ServerConfig {
	config := &ServerConfig{
		Host:         "0.0.0.0",
		Backlog:      100,
		BufferSize:   1024,
		TickInterval: 1 * time.Second,
	}

	if provided == nil {
		return config
	}

	if provided.Host != "" {
		config.Host = provided.Host
	}
	config.Port = provided.Port
	if provided.Backlog > 0 {
		config.Backlog = provided.Backlog
	}
	if provided.BufferSize > 0 {
		config.BufferSize = provided.BufferSize
	}
	config.MaximumNumberOfConnections = provided.MaximumNumberOfConnections
	if provided.TickInterval != 0 {
		config.TickInterval = provided.TickInterval
	}
	if provided.PacketProcessor != nil {
		config.PacketProcessor = provided.PacketProcessor
	} else {
		config.PacketProcessor = defaultPacketProcessor{}
	}
	if provided.Logger != nil {
		config.Logger = provided.Logger
	} else {
		config.Logger = discardLogger
	}

	return config
}

// validate enforces spec §6: invalid port or unresolvable host fail with KindConfiguration before any socket opens.
func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return newError(KindConfiguration, fmt.Sprintf("invalid port: %d", c.Port))
	}
	if c.Host != "0.0.0.0" && c.Host != "" && net.ParseIP(c.Host) == nil {
		if _, err := net.LookupHost(c.Host); err != nil {
			return wrapError(KindConfiguration, err)
		}
	}
	if c.BufferSize <= 0 {
		return newError(KindConfiguration, "buffer size must be positive")
	}
	if c.MaximumNumberOfConnections <= 0 {
		return newError(KindConfiguration, "maximum number of connections must be positive")
	}

	return nil
}

func (c *ServerConfig) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func mergeClientConfig(provided *ClientConfig) *ClientConfig {
	config := &ClientConfig{
		BufferSize: 1024,
	}

	if provided == nil {
		return config
	}

	config.Host = provided.Host
	config.Port = provided.Port
	if provided.BufferSize > 0 {
		config.BufferSize = provided.BufferSize
	}
	if provided.PacketProcessor != nil {
		config.PacketProcessor = provided.PacketProcessor
	} else {
		config.PacketProcessor = defaultPacketProcessor{}
	}
	if provided.Logger != nil {
		config.Logger = provided.Logger
	} else {
		config.Logger = discardLogger
	}

	return config
}

func (c *ClientConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return newError(KindConfiguration, fmt.Sprintf("invalid port: %d", c.Port))
	}
	if c.Host == "" {
		return newError(KindConfiguration, "host must not be empty")
	}
	if c.BufferSize <= 0 {
		return newError(KindConfiguration, "buffer size must be positive")
	}

	return nil
}

func (c *ClientConfig) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
